package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"voxelbuild.ai/internal/command"
	"voxelbuild.ai/internal/dispatch"
	"voxelbuild.ai/internal/geometry"
	"voxelbuild.ai/internal/persistence/journal"
	"voxelbuild.ai/internal/worldsim"
)

func main() {
	var (
		journalDir = flag.String("journal", "./data/builder/journal", "journal dir containing builds-*.jsonl.zst")
		apply      = flag.Bool("apply", false, "re-apply emitted commands to a fresh simulated world")
		groundY    = flag.Int("ground", worldsim.DefaultConfig().GroundY, "terrain surface height for -apply")
		verbose    = flag.Bool("v", false, "print every outcome")
	)
	flag.Parse()

	files, err := journal.Files(*journalDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "list journal:", err)
		os.Exit(1)
	}
	if len(files) == 0 {
		fmt.Fprintln(os.Stderr, "no journal files found in", *journalDir)
		os.Exit(1)
	}

	var w *worldsim.World
	var agentID string
	if *apply {
		cfg := worldsim.DefaultConfig()
		cfg.GroundY = *groundY
		cfg.Spawn = [3]int{0, *groundY, 0}
		w = worldsim.New(cfg)
		agentID, _ = w.Join("replay")
	}

	var sum summary
	for _, path := range files {
		outs, err := journal.ReadAll(path)
		if err != nil {
			fmt.Fprintln(os.Stderr, "read journal:", err)
			os.Exit(1)
		}
		for _, o := range outs {
			sum.add(o)
			if *verbose {
				fmt.Printf("%s %-12s %q builds=%d cmds=%d %s\n",
					o.StartedAt.Format("2006-01-02T15:04:05"), o.Kind, o.Request.Text, len(o.Builds), len(o.Commands), o.Err)
			}
			if err := verifyOutcome(o); err != nil {
				fmt.Fprintf(os.Stderr, "req=%s: %v\n", o.Request.ID, err)
				os.Exit(1)
			}
			if w != nil {
				sum.rejected += applyOutcome(w, agentID, o)
			}
		}
	}

	fmt.Printf("replay ok: files=%d requests=%d built=%d skipped=%d failed=%d fills=%d\n",
		len(files), sum.requests, sum.built, sum.skipped, sum.failed, sum.fills)
	if w != nil {
		fmt.Printf("applied: fills=%d rejected=%d\n", w.Fills(), sum.rejected)
	}
}

type summary struct {
	requests int
	built    int
	skipped  int
	failed   int
	fills    int
	rejected int
}

func (s *summary) add(o dispatch.Outcome) {
	s.requests++
	for _, b := range o.Builds {
		switch b.Status {
		case dispatch.BuildBuilt:
			s.built++
		case dispatch.BuildSkipped:
			s.skipped++
		case dispatch.BuildFailed:
			s.failed++
		}
		s.fills += b.Fills
	}
}

// verifyOutcome re-synthesizes every recorded build and checks the fills it
// would send appear, in order, among the commands actually emitted.
func verifyOutcome(o dispatch.Outcome) error {
	cursor := 0
	for i, b := range o.Builds {
		if b.Status == dispatch.BuildSkipped {
			if b.Fills != 0 {
				return fmt.Errorf("build %d: skipped with %d fills", i, b.Fills)
			}
			continue
		}
		s := b.Instruction.Structure()
		s.Material = b.Material
		var want []string
		for _, op := range geometry.Synthesize(s, b.GroundY) {
			if op.Box.Empty() {
				continue
			}
			want = append(want, command.FromOperation(op).Render())
		}
		if b.Status == dispatch.BuildBuilt && b.Fills != len(want) {
			return fmt.Errorf("build %d: recorded fills=%d want=%d", i, b.Fills, len(want))
		}
		if b.Fills > len(want) {
			return fmt.Errorf("build %d: recorded fills=%d exceed synthesized=%d", i, b.Fills, len(want))
		}
		for _, line := range want[:b.Fills] {
			for cursor < len(o.Commands) && o.Commands[cursor] != line {
				cursor++
			}
			if cursor == len(o.Commands) {
				return fmt.Errorf("build %d: %q not emitted", i, line)
			}
			cursor++
		}
	}
	return nil
}

// applyOutcome runs the outcome's world-changing commands and returns how many
// the world rejected.
func applyOutcome(w *worldsim.World, agentID string, o dispatch.Outcome) int {
	rejected := 0
	for _, c := range o.Commands {
		if strings.HasPrefix(c, "/say ") {
			continue
		}
		if res := w.Exec(agentID, c); !res.OK() {
			rejected++
		}
	}
	return rejected
}
