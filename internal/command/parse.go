package command

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"voxelbuild.ai/internal/geometry"
)

// BuildPrefix is the canonical build-instruction prefix.
const BuildPrefix = "//build"

// BuildInstruction is a validated request to erect one rectangular structure.
type BuildInstruction struct {
	OriginX  int    `json:"origin_x"`
	OriginZ  int    `json:"origin_z"`
	Material string `json:"material"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	Hollow   bool   `json:"hollow,omitempty"`
}

func (b BuildInstruction) String() string {
	s := fmt.Sprintf("%s %d %d %s %d %d", BuildPrefix, b.OriginX, b.OriginZ, b.Material, b.Width, b.Height)
	if b.Hollow {
		s += " hollow"
	}
	return s
}

// ParseError describes a build line that was dropped.
type ParseError struct {
	Line   string
	Reason string
}

func (e ParseError) Error() string {
	return fmt.Sprintf("invalid build command %q: %s", e.Line, e.Reason)
}

// Parse extracts build instructions from text, one per accepted line. It never
// fails: malformed build lines are reported to onReject (may be nil) and skipped.
// Text with no build lines yields nil.
func Parse(text string, onReject func(ParseError)) []BuildInstruction {
	var out []BuildInstruction
	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		if !IsBuildLine(line) {
			continue
		}
		instr, err := parseLine(line)
		if err != nil {
			if onReject != nil {
				onReject(*err)
			}
			continue
		}
		out = append(out, instr)
	}
	return out
}

// Bounds on parsed fields. Anything past them cannot describe a real build,
// and keeping them small means corner and height sums never overflow.
const (
	MaxCoord     = 30_000_000
	MaxDimension = 1 << 16
)

func parseLine(line string) (BuildInstruction, *ParseError) {
	parts := strings.Fields(line)
	if len(parts) < 6 {
		return BuildInstruction{}, &ParseError{Line: line, Reason: fmt.Sprintf("want at least 6 fields, got %d", len(parts))}
	}
	var nums [4]int
	for i, idx := range [4]int{1, 2, 4, 5} {
		n, err := strconv.Atoi(parts[idx])
		if err != nil {
			return BuildInstruction{}, &ParseError{Line: line, Reason: fmt.Sprintf("field %d %q is not an integer", idx+1, parts[idx])}
		}
		nums[i] = n
	}
	instr := BuildInstruction{
		OriginX:  nums[0],
		OriginZ:  nums[1],
		Material: parts[3],
		Width:    nums[2],
		Height:   nums[3],
		Hollow:   len(parts) > 6 && parts[6] == "hollow",
	}
	if instr.Width < 1 {
		return BuildInstruction{}, &ParseError{Line: line, Reason: "width must be >= 1"}
	}
	if instr.Height < 1 {
		return BuildInstruction{}, &ParseError{Line: line, Reason: "height must be >= 1"}
	}
	if instr.OriginX < -MaxCoord || instr.OriginX > MaxCoord || instr.OriginZ < -MaxCoord || instr.OriginZ > MaxCoord {
		return BuildInstruction{}, &ParseError{Line: line, Reason: fmt.Sprintf("origin must be within +/-%d", MaxCoord)}
	}
	if instr.Width > MaxDimension {
		return BuildInstruction{}, &ParseError{Line: line, Reason: fmt.Sprintf("width must be <= %d", MaxDimension)}
	}
	if instr.Height > MaxDimension {
		return BuildInstruction{}, &ParseError{Line: line, Reason: fmt.Sprintf("height must be <= %d", MaxDimension)}
	}
	return instr, nil
}

// IsBuildLine reports whether the first field of line is a build prefix
// ("//build", "/build" or a bare "build", any case).
func IsBuildLine(line string) bool {
	f := firstField(line)
	return strings.EqualFold(strings.TrimLeft(f, "/"), "build") && len(f)-len(strings.TrimLeft(f, "/")) <= 2
}

// NormalizeBuildPrefix rewrites a leading build prefix to BuildPrefix. Other
// lines are returned trimmed but otherwise unchanged.
func NormalizeBuildPrefix(line string) string {
	line = strings.TrimSpace(line)
	if !IsBuildLine(line) {
		return line
	}
	return BuildPrefix + line[len(firstField(line)):]
}

var directRe = regexp.MustCompile(`^//build\s+-?\d+`)

// IsDirectInstruction reports whether line, once normalized, is a literal build
// instruction (prefix followed by an integer) that needs no translation.
func IsDirectInstruction(line string) bool {
	return directRe.MatchString(NormalizeBuildPrefix(line))
}

// IsPassThrough reports whether line is a slash command other than a build.
func IsPassThrough(line string) bool {
	line = strings.TrimSpace(line)
	return strings.HasPrefix(line, "/") && !IsBuildLine(line)
}

var intRe = regexp.MustCompile(`-?\d+`)

// ParseCoords returns every signed integer in line, in order.
func ParseCoords(line string) []int {
	found := intRe.FindAllString(line, -1)
	out := make([]int, 0, len(found))
	for _, s := range found {
		n, err := strconv.Atoi(s)
		if err != nil {
			continue
		}
		out = append(out, n)
	}
	return out
}

func firstField(line string) string {
	line = strings.TrimSpace(line)
	if i := strings.IndexAny(line, " \t"); i >= 0 {
		return line[:i]
	}
	return line
}

// Structure is the geometry view of the instruction.
func (b BuildInstruction) Structure() geometry.Structure {
	return geometry.Structure{
		OriginX:  b.OriginX,
		OriginZ:  b.OriginZ,
		Material: b.Material,
		Width:    b.Width,
		Height:   b.Height,
		Hollow:   b.Hollow,
	}
}
