// Package journal keeps an append-only, hourly rotated record of handled
// requests as zstd-compressed JSON lines.
package journal

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"voxelbuild.ai/internal/dispatch"
)

const (
	Prefix = "builds"
	ext    = ".jsonl.zst"

	hourLayout = "2006-01-02-15"
)

// segment is the open file for one UTC hour. Every reopen starts a new zstd
// frame, so a file is a concatenation of frames.
type segment struct {
	hour string
	file *os.File
	zw   *zstd.Encoder
	enc  *json.Encoder
}

func (s *segment) close() error {
	return errors.Join(s.zw.Close(), s.file.Close())
}

// Journal records every dispatch outcome. It is safe for concurrent use.
type Journal struct {
	dir string
	now func() time.Time

	mu  sync.Mutex
	cur *segment
}

func New(dir string) *Journal {
	return &Journal{dir: dir, now: time.Now}
}

// Record appends o to the segment for the current hour and flushes it.
func (j *Journal) Record(o dispatch.Outcome) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	seg, err := j.segmentFor(j.now().UTC().Format(hourLayout))
	if err != nil {
		return fmt.Errorf("journal: %w", err)
	}
	if err := seg.enc.Encode(o); err != nil {
		return fmt.Errorf("journal: encode %s: %w", o.Request.ID, err)
	}
	// A crash loses at most the outcome being written.
	return seg.zw.Flush()
}

func (j *Journal) segmentFor(hour string) (*segment, error) {
	if j.cur != nil && j.cur.hour == hour {
		return j.cur, nil
	}
	if j.cur != nil {
		err := j.cur.close()
		j.cur = nil
		if err != nil {
			return nil, err
		}
	}
	if err := os.MkdirAll(j.dir, 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(Path(j.dir, hour), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	zw, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	j.cur = &segment{hour: hour, file: f, zw: zw, enc: json.NewEncoder(zw)}
	return j.cur, nil
}

func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.cur == nil {
		return nil
	}
	err := j.cur.close()
	j.cur = nil
	return err
}

// Path is the journal file for one UTC hour ("2006-01-02-15").
func Path(dir, hour string) string {
	return filepath.Join(dir, Prefix+"-"+hour+ext)
}

// Files lists the journal files in dir, oldest first.
func Files(dir string) ([]string, error) {
	paths, err := filepath.Glob(filepath.Join(dir, Prefix+"-*"+ext))
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)
	return paths, nil
}

// ReadAll decodes every outcome in one journal file.
func ReadAll(path string) ([]dispatch.Outcome, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	zr, err := zstd.NewReader(f)
	if err != nil {
		return nil, err
	}
	defer zr.Close()

	var out []dispatch.Outcome
	dec := json.NewDecoder(zr)
	for {
		var o dispatch.Outcome
		err := dec.Decode(&o)
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return out, fmt.Errorf("%s: record %d: %w", filepath.Base(path), len(out)+1, err)
		}
		out = append(out, o)
	}
}
