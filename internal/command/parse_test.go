package command

import (
	"fmt"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"voxelbuild.ai/internal/geometry"
)

func TestParse_AcceptsAndRejects(t *testing.T) {
	var rejected []ParseError
	got := Parse(strings.Join([]string{
		"//build 10 10 stone 5 4",
		"  /build -3 7 minecraft:glass 2 3 hollow  ",
		"BUILD 1 2 wood 3 3 solid",
		"//build 1 2 stone 5",
		"//build x 2 stone 5 4",
		"//build 1 2 stone 0 4",
		"/say hello",
		"some chatter from the model",
		"",
	}, "\n"), func(e ParseError) { rejected = append(rejected, e) })

	want := []BuildInstruction{
		{OriginX: 10, OriginZ: 10, Material: "stone", Width: 5, Height: 4},
		{OriginX: -3, OriginZ: 7, Material: "minecraft:glass", Width: 2, Height: 3, Hollow: true},
		{OriginX: 1, OriginZ: 2, Material: "wood", Width: 3, Height: 3},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("instructions mismatch (-want +got):\n%s", diff)
	}
	if len(rejected) != 3 {
		t.Fatalf("rejected=%d want=3 (%v)", len(rejected), rejected)
	}
	if !strings.Contains(rejected[0].Error(), "at least 6 fields") {
		t.Fatalf("unexpected reason: %v", rejected[0])
	}
}

func TestParse_RejectsOutOfRangeFields(t *testing.T) {
	cases := []struct {
		line   string
		reason string
	}{
		{"//build 9223372036854775807 0 stone 2 2", "origin"},
		{"//build 0 -9223372036854775808 stone 2 2", "origin"},
		{"//build 30000001 0 stone 2 2", "origin"},
		{"//build 0 0 stone 9223372036854775807 2", "width"},
		{"//build 0 0 stone 2 9223372036854775807", "height"},
		{"//build 0 0 stone 65537 2", "width"},
	}
	for _, c := range cases {
		var rejected []ParseError
		if got := Parse(c.line, func(e ParseError) { rejected = append(rejected, e) }); len(got) != 0 {
			t.Fatalf("Parse(%q)=%v want none", c.line, got)
		}
		if len(rejected) != 1 || !strings.Contains(rejected[0].Reason, c.reason) {
			t.Fatalf("Parse(%q) rejected=%v want reason containing %q", c.line, rejected, c.reason)
		}
	}

	edge := fmt.Sprintf("//build %d %d stone %d %d", MaxCoord, -MaxCoord, MaxDimension, MaxDimension)
	if got := Parse(edge, nil); len(got) != 1 {
		t.Fatalf("Parse(%q)=%v want one instruction", edge, got)
	}
}

func TestParse_EmptyIsNothingToBuild(t *testing.T) {
	for _, in := range []string{"", "\n\n", "/fill 1 2 3 4 5 6 stone", "hello"} {
		if got := Parse(in, nil); len(got) != 0 {
			t.Fatalf("Parse(%q)=%v want empty", in, got)
		}
	}
}

func TestParse_FieldCountProperty(t *testing.T) {
	fields := []string{"//build", "4", "-8", "dirt", "3", "2", "hollow", "extra"}
	for n := 1; n <= len(fields); n++ {
		line := strings.Join(fields[:n], " ")
		got := Parse(line, nil)
		if n < 6 && len(got) != 0 {
			t.Fatalf("n=%d: got %v want none", n, got)
		}
		if n >= 6 {
			if len(got) != 1 {
				t.Fatalf("n=%d: got %d instructions want 1", n, len(got))
			}
			want := BuildInstruction{OriginX: 4, OriginZ: -8, Material: "dirt", Width: 3, Height: 2, Hollow: n >= 7}
			if got[0] != want {
				t.Fatalf("n=%d: got %+v want %+v", n, got[0], want)
			}
		}
	}
}

func TestPrefixHelpers(t *testing.T) {
	cases := []struct {
		line        string
		build       bool
		direct      bool
		passThrough bool
		normalized  string
	}{
		{line: "//build 1 2 stone 3 3", build: true, direct: true, normalized: "//build 1 2 stone 3 3"},
		{line: "/build -1 2 stone 3 3", build: true, direct: true, normalized: "//build -1 2 stone 3 3"},
		{line: "BUILD 10 10 stone 5 4", build: true, direct: true, normalized: "//build 10 10 stone 5 4"},
		{line: "build a glass tower", build: true, normalized: "//build a glass tower"},
		{line: "/say hi", passThrough: true, normalized: "/say hi"},
		{line: "//fill 1 2 3 4 5 6 glass", passThrough: true, normalized: "//fill 1 2 3 4 5 6 glass"},
		{line: "///build 1 2 stone 3 3", passThrough: true, normalized: "///build 1 2 stone 3 3"},
		{line: "/builder 1", passThrough: true, normalized: "/builder 1"},
		{line: "make me a house", normalized: "make me a house"},
	}
	for _, c := range cases {
		if got := IsBuildLine(c.line); got != c.build {
			t.Fatalf("IsBuildLine(%q)=%v", c.line, got)
		}
		if got := IsDirectInstruction(c.line); got != c.direct {
			t.Fatalf("IsDirectInstruction(%q)=%v", c.line, got)
		}
		if got := IsPassThrough(c.line); got != c.passThrough {
			t.Fatalf("IsPassThrough(%q)=%v", c.line, got)
		}
		if got := NormalizeBuildPrefix(c.line); got != c.normalized {
			t.Fatalf("NormalizeBuildPrefix(%q)=%q want %q", c.line, got, c.normalized)
		}
	}
}

func TestParseCoords(t *testing.T) {
	got := ParseCoords("/fill -4 64 10 2 70 -12 minecraft:stone")
	want := []int{-4, 64, 10, 2, 70, -12}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("coords mismatch (-want +got):\n%s", diff)
	}
}

func TestRender(t *testing.T) {
	f := Fill{Box: geometry.Box{X1: 1, Y1: 2, Z1: 3, X2: 4, Y2: 5, Z2: 6}, Material: "minecraft:glass"}
	if got := f.Render(); got != "/fill 1 2 3 4 5 6 minecraft:glass" {
		t.Fatalf("Render=%q", got)
	}
	if got := Say("ready").Render(); got != "/say ready" {
		t.Fatalf("Say=%q", got)
	}
	instr := BuildInstruction{OriginX: 1, OriginZ: 2, Material: "stone", Width: 3, Height: 4, Hollow: true}
	if got := Parse(instr.String(), nil); len(got) != 1 || got[0] != instr {
		t.Fatalf("String does not parse back: %v", got)
	}
}
