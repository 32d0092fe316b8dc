package sanitize

import (
	"bytes"
	"log"
	"strings"
	"testing"

	"voxelbuild.ai/internal/materials"
)

func TestSanitize(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{name: "tags and material", in: "<p>//fill 1 2 3 4 5 6 glass</p>", want: "//fill 1 2 3 4 5 6 minecraft:glass"},
		{name: "fenced", in: "```\n/fill 0 64 0 4 68 4 stone\n```", want: "/fill 0 64 0 4 68 4 minecraft:stone"},
		{name: "quoted", in: `"/fill 1 1 1 2 2 2 wood"`, want: "/fill 1 1 1 2 2 2 minecraft:oak_planks"},
		{name: "chatter before command", in: "Sure! Here is your command:\n  //build 10 10 brick 5 4 hollow\nEnjoy", want: "//build 10 10 minecraft:bricks 5 4 hollow"},
		{name: "first command wins", in: "/fill 1 2 3 4 5 6 sand\n/fill 0 0 0 1 1 1 dirt", want: "/fill 1 2 3 4 5 6 minecraft:sand"},
		{name: "no command", in: "I cannot help with that.", want: ""},
		{name: "empty", in: "", want: ""},
		{name: "doubled namespace", in: "/fill 1 2 3 4 5 6 minecraft:minecraft:obsidian", want: "/fill 1 2 3 4 5 6 minecraft:obsidian"},
		{name: "whole words only", in: "/fill 1 2 3 4 5 6 stone_bricks", want: "/fill 1 2 3 4 5 6 stone_bricks"},
		{name: "setblock rewrite", in: "/setblock 5 64 -2 glass", want: "/fill 5 64 -2 5 64 -2 minecraft:glass"},
		{name: "setblock with state", in: "<code>/setblock 1 2 3 minecraft:oak_door[half=upper] replace</code>", want: "/fill 1 2 3 1 2 3 minecraft:oak_door[half=upper] replace"},
		{name: "nested tags", in: "<<b>i>/say hi", want: "/say hi"},
		{name: "whitespace collapse", in: "/fill  1\t2 3   4 5 6  tnt ", want: "/fill 1 2 3 4 5 6 minecraft:tnt"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := Sanitize(c.in)
			if got != c.want {
				t.Fatalf("Sanitize(%q)=%q want %q", c.in, got, c.want)
			}
			if again := Sanitize(got); again != got {
				t.Fatalf("not idempotent: %q -> %q", got, again)
			}
		})
	}
}

func TestSanitizer_LogsRewrite(t *testing.T) {
	var buf bytes.Buffer
	s := New(materials.Default(), log.New(&buf, "", 0))
	if got := s.Sanitize("/setblock 1 2 3 stone"); got != "/fill 1 2 3 1 2 3 minecraft:stone" {
		t.Fatalf("got %q", got)
	}
	if !strings.Contains(buf.String(), "rewrote single-block command") {
		t.Fatalf("expected rewrite log, got %q", buf.String())
	}
}

func TestSanitizer_ExtendedTable(t *testing.T) {
	tab, _ := materials.NewTable(map[string]string{"marble": "quartz_block"})
	s := New(tab, nil)
	if got := s.Sanitize("//build 0 0 marble 3 3"); got != "//build 0 0 minecraft:quartz_block 3 3" {
		t.Fatalf("got %q", got)
	}
}

func FuzzSanitizeIdempotent(f *testing.F) {
	seeds := []string{
		"<p>//fill 1 2 3 4 5 6 glass</p>",
		"``````/fill 1 1 1 2 2 2 stone````",
		"'\"/say \"hi\"\"'",
		"<<a>b>/fill 0 0 0 1 1 1 minecraft:minecraft:minecraft:dirt",
		"text\n\r\n  '/setblock 1 2 3 water'  \n/fill",
		"/setblock 1 2",
		"/ `` `",
	}
	for _, s := range seeds {
		f.Add(s)
	}
	f.Fuzz(func(t *testing.T, in string) {
		once := Sanitize(in)
		if twice := Sanitize(once); twice != once {
			t.Fatalf("not idempotent for %q: %q -> %q", in, once, twice)
		}
		if once != "" && !strings.HasPrefix(once, "/") {
			t.Fatalf("output %q does not start with a slash", once)
		}
	})
}
