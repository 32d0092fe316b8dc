package command

import (
	"fmt"

	"voxelbuild.ai/internal/geometry"
)

// Command is one emitted world command. The set of variants is closed:
// Fill and PassThrough are the only implementations.
type Command interface {
	Render() string
	isCommand()
}

// Fill sets every cell of Box to Material.
type Fill struct {
	Box      geometry.Box
	Material string
}

func (f Fill) Render() string {
	b := f.Box
	return fmt.Sprintf("/fill %d %d %d %d %d %d %s", b.X1, b.Y1, b.Z1, b.X2, b.Y2, b.Z2, f.Material)
}

func (Fill) isCommand() {}

// PassThrough is a raw chat or world command sent verbatim.
type PassThrough struct {
	Text string
}

func (p PassThrough) Render() string { return p.Text }

func (PassThrough) isCommand() {}

// FromOperation converts a synthesized fill operation to its wire command.
func FromOperation(op geometry.FillOperation) Fill {
	return Fill{Box: op.Box, Material: op.Material}
}

// Say is the chat notice used for user-facing status lines.
func Say(text string) PassThrough {
	return PassThrough{Text: "/say " + text}
}
