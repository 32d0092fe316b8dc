package journal

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"voxelbuild.ai/internal/command"
	"voxelbuild.ai/internal/dispatch"
	"voxelbuild.ai/internal/geometry"
)

func sampleOutcome(id string, at time.Time) dispatch.Outcome {
	return dispatch.Outcome{
		Request: dispatch.Request{ID: id, Text: "//build 10 10 stone 5 4", EnqueuedAt: at},
		Kind:    dispatch.KindBuilt,
		Commands: []string{
			"/say Moving to safe distance...",
			"/fill 10 63 10 14 63 14 minecraft:grass_block",
		},
		Builds: []dispatch.BuildResult{{
			Instruction: command.BuildInstruction{OriginX: 10, OriginZ: 10, Material: "stone", Width: 5, Height: 4},
			Material:    "minecraft:stone",
			GroundY:     64,
			SafePoint:   geometry.Point{X: 17, Y: 64, Z: 17},
			Status:      dispatch.BuildBuilt,
			Fills:       7,
		}},
		StartedAt:  at,
		FinishedAt: at.Add(time.Second),
	}
}

func TestJournal_RotatesHourlyAndReadsBack(t *testing.T) {
	dir := t.TempDir()
	h1 := time.Date(2026, 3, 1, 9, 15, 0, 0, time.UTC)
	h2 := h1.Add(time.Hour)

	j := New(dir)
	clock := h1
	j.now = func() time.Time { return clock }

	a := sampleOutcome("a", h1)
	b := sampleOutcome("b", h1)
	c := sampleOutcome("c", h2)
	for _, o := range []dispatch.Outcome{a, b} {
		if err := j.Record(o); err != nil {
			t.Fatalf("record: %v", err)
		}
	}
	clock = h2
	if err := j.Record(c); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := j.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	files, err := Files(dir)
	if err != nil {
		t.Fatalf("files: %v", err)
	}
	want := []string{
		filepath.Join(dir, "builds-2026-03-01-09.jsonl.zst"),
		filepath.Join(dir, "builds-2026-03-01-10.jsonl.zst"),
	}
	if diff := cmp.Diff(want, files); diff != "" {
		t.Fatalf("files mismatch (-want +got):\n%s", diff)
	}

	got, err := ReadAll(files[0])
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if diff := cmp.Diff([]dispatch.Outcome{a, b}, got); diff != "" {
		t.Fatalf("outcomes mismatch (-want +got):\n%s", diff)
	}
	got, err = ReadAll(files[1])
	if err != nil || len(got) != 1 || got[0].Request.ID != "c" {
		t.Fatalf("got=%+v err=%v", got, err)
	}
}

func TestJournal_AppendsAcrossRestarts(t *testing.T) {
	dir := t.TempDir()
	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	for _, id := range []string{"first", "second"} {
		j := New(dir)
		j.now = func() time.Time { return at }
		if err := j.Record(sampleOutcome(id, at)); err != nil {
			t.Fatalf("record: %v", err)
		}
		if err := j.Close(); err != nil {
			t.Fatalf("close: %v", err)
		}
	}

	got, err := ReadAll(filepath.Join(dir, "builds-2026-03-01-09.jsonl.zst"))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(got) != 2 || got[0].Request.ID != "first" || got[1].Request.ID != "second" {
		t.Fatalf("got=%+v", got)
	}
}
