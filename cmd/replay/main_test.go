package main

import (
	"strings"
	"testing"

	"voxelbuild.ai/internal/command"
	"voxelbuild.ai/internal/dispatch"
	"voxelbuild.ai/internal/geometry"
	"voxelbuild.ai/internal/worldsim"
)

func builtOutcome(t *testing.T) dispatch.Outcome {
	t.Helper()
	in := command.BuildInstruction{OriginX: 0, OriginZ: 0, Material: "stone", Width: 4, Height: 3}
	s := in.Structure()
	s.Material = "minecraft:stone"
	cmds := []string{"/say Moving to safe distance...", "/say Executing build..."}
	fills := 0
	for _, op := range geometry.Synthesize(s, 64) {
		if op.Box.Empty() {
			continue
		}
		cmds = append(cmds, command.FromOperation(op).Render())
		fills++
	}
	return dispatch.Outcome{
		Request:  dispatch.Request{ID: "r1", Text: "build a house"},
		Kind:     dispatch.KindBuilt,
		Commands: cmds,
		Builds: []dispatch.BuildResult{{
			Instruction: in,
			Material:    "minecraft:stone",
			GroundY:     64,
			Status:      dispatch.BuildBuilt,
			Fills:       fills,
		}},
	}
}

func TestVerifyOutcome_Built(t *testing.T) {
	o := builtOutcome(t)
	if err := verifyOutcome(o); err != nil {
		t.Fatalf("verify: %v", err)
	}
}

func TestVerifyOutcome_MissingFill(t *testing.T) {
	o := builtOutcome(t)
	o.Commands = o.Commands[:len(o.Commands)-1]
	if err := verifyOutcome(o); err == nil || !strings.Contains(err.Error(), "not emitted") {
		t.Fatalf("err=%v", err)
	}
}

func TestVerifyOutcome_FillCountMismatch(t *testing.T) {
	o := builtOutcome(t)
	o.Builds[0].Fills--
	if err := verifyOutcome(o); err == nil {
		t.Fatalf("expected error")
	}
}

func TestVerifyOutcome_PartialFailure(t *testing.T) {
	o := builtOutcome(t)
	o.Builds[0].Status = dispatch.BuildFailed
	o.Builds[0].Fills = 2
	o.Commands = o.Commands[:4]
	if err := verifyOutcome(o); err != nil {
		t.Fatalf("verify: %v", err)
	}
}

func TestVerifyOutcome_SkippedWithFills(t *testing.T) {
	o := builtOutcome(t)
	o.Builds[0].Status = dispatch.BuildSkipped
	if err := verifyOutcome(o); err == nil {
		t.Fatalf("expected error")
	}
}

func TestApplyOutcome(t *testing.T) {
	w := worldsim.New(worldsim.DefaultConfig())
	id, _ := w.Join("replay")

	o := builtOutcome(t)
	o.Commands = append(o.Commands, "/fly")
	if got := applyOutcome(w, id, o); got != 1 {
		t.Fatalf("rejected=%d want=1", got)
	}
	if got, want := w.Fills(), o.Builds[0].Fills; got != want {
		t.Fatalf("fills=%d want=%d", got, want)
	}
	if id, _ := w.BlockAt(1, 64, 1); id != "minecraft:stone" {
		t.Fatalf("floor block=%q", id)
	}
}

func TestSummaryAdd(t *testing.T) {
	var s summary
	o := builtOutcome(t)
	o.Builds = append(o.Builds, dispatch.BuildResult{Status: dispatch.BuildSkipped})
	s.add(o)
	if s.requests != 1 || s.built != 1 || s.skipped != 1 || s.fills != o.Builds[0].Fills {
		t.Fatalf("summary=%+v", s)
	}
}
