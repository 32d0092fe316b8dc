package translate

import (
	"context"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"voxelbuild.ai/internal/command"
	"voxelbuild.ai/internal/geometry"
	"voxelbuild.ai/internal/llm"
	"voxelbuild.ai/internal/sanitize"
)

type Translator struct {
	model     llm.Client
	sanitizer *sanitize.Sanitizer
	timeout   time.Duration
	log       *log.Logger
}

func New(model llm.Client, sanitizer *sanitize.Sanitizer, timeout time.Duration, logger *log.Logger) *Translator {
	if sanitizer == nil {
		sanitizer = sanitize.New(nil, logger)
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Translator{model: model, sanitizer: sanitizer, timeout: timeout, log: logger}
}

// Translate returns command text for userText. Literal build instructions are
// returned normalized and never reach the model. Anything else is sent to the
// model once; the sanitized reply is returned, or "" when the model failed or
// produced no command.
func (t *Translator) Translate(ctx context.Context, userText string, pos geometry.Point) string {
	if command.IsDirectInstruction(userText) {
		return command.NormalizeBuildPrefix(userText)
	}
	if t.model == nil {
		t.log.Printf("translate: no model configured; dropping %q", userText)
		return ""
	}

	if t.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	raw, err := t.model.Generate(ctx, BuildPrompt(userText, pos))
	if err != nil {
		t.log.Printf("translate: model request failed: %v", err)
		return ""
	}
	t.log.Printf("translate: raw model output %q", raw)

	out := t.sanitizer.Sanitize(raw)
	if out == "" {
		t.log.Printf("translate: no command in model output")
	}
	return out
}

// BuildPrompt assembles the model prompt for a free-text request.
func BuildPrompt(userText string, pos geometry.Point) string {
	lines := []string{
		"You are a Minecraft build-command generator.",
		"Output ONLY lines that begin with //build in the format:",
		"//build <X> <Z> <block> <width> <height> [hollow]",
		"If a box-shaped build cannot express the request, reply with exactly one full-structure command such as /fill x1 y1 z1 x2 y2 z2 <block>.",
		fmt.Sprintf("Bot is at x=%d, y=%d, z=%d.", pos.X, pos.Y, pos.Z),
		"Avoid underwater, floating, or underground builds.",
		"- NEVER use /setblock or any non-structure commands.",
		"- Use absolute coordinates so they can be parsed as numbers.",
		"- Do NOT apologize or emit any other text.",
		fmt.Sprintf("User request: %q", strings.TrimSpace(userText)),
	}
	return strings.Join(lines, "\n")
}
