// Package sanitize turns free-form model output into a single command line.
//
// The transformation is total and idempotent: feeding its output back in yields
// the same string.
package sanitize

import (
	"io"
	"log"
	"regexp"
	"strings"

	"voxelbuild.ai/internal/materials"
)

const quoteChars = "\"'`"

var tagRe = regexp.MustCompile(`<[^<>]*>`)

type Sanitizer struct {
	table *materials.Table
	log   *log.Logger
}

func New(table *materials.Table, logger *log.Logger) *Sanitizer {
	if table == nil {
		table = materials.Default()
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Sanitizer{table: table, log: logger}
}

// Sanitize normalizes model output into one executable command line, or "" when
// the output holds no slash command.
func (s *Sanitizer) Sanitize(out string) string {
	text := stripToFixpoint(out, func(v string) string { return tagRe.ReplaceAllString(v, "") })
	text = stripToFixpoint(text, func(v string) string { return strings.ReplaceAll(v, "```", "") })
	text = trimOneQuoteLayer(strings.TrimSpace(text))

	line := firstCommandLine(text)
	if line == "" {
		return ""
	}

	fields := strings.Fields(line)
	for i, f := range fields {
		fields[i] = materials.CollapseNamespace(s.table.Resolve(f))
	}

	if rewritten, ok := setblockToFill(fields); ok {
		s.log.Printf("rewrote single-block command %q -> %q", strings.Join(fields, " "), rewritten)
		return rewritten
	}
	return strings.Join(fields, " ")
}

// Sanitize runs the default sanitizer.
func Sanitize(out string) string {
	return defaultSanitizer.Sanitize(out)
}

var defaultSanitizer = New(nil, nil)

func stripToFixpoint(s string, step func(string) string) string {
	for {
		next := step(s)
		if next == s {
			return s
		}
		s = next
	}
}

func trimOneQuoteLayer(s string) string {
	if s != "" && strings.ContainsRune(quoteChars, rune(s[0])) {
		s = s[1:]
	}
	if s != "" && strings.ContainsRune(quoteChars, rune(s[len(s)-1])) {
		s = s[:len(s)-1]
	}
	return s
}

func firstCommandLine(text string) string {
	for _, l := range strings.Split(text, "\n") {
		l = strings.Trim(strings.TrimSpace(l), quoteChars+" \t\r")
		if strings.HasPrefix(l, "/") {
			return l
		}
	}
	return ""
}

// setblockToFill rewrites "/setblock x y z block..." into a one-cell fill.
func setblockToFill(fields []string) (string, bool) {
	if len(fields) < 5 {
		return "", false
	}
	name := strings.ToLower(strings.TrimLeft(fields[0], "/"))
	if name != "setblock" {
		return "", false
	}
	x, y, z := fields[1], fields[2], fields[3]
	parts := append([]string{"/fill", x, y, z, x, y, z}, fields[4:]...)
	return strings.Join(parts, " "), true
}
