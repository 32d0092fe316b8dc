// Package dispatch drains the request queue one request at a time and turns
// each request into world commands.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"voxelbuild.ai/internal/command"
	"voxelbuild.ai/internal/geometry"
	"voxelbuild.ai/internal/materials"
	"voxelbuild.ai/internal/surface"
)

var (
	ErrNotReady    = errors.New("world not ready")
	ErrMoveTimeout = errors.New("movement timed out")
	ErrNotArrived  = errors.New("agent did not reach target")
)

// Chat notices shown to players.
const (
	MsgNoCommand   = "AI gave no usable command. Try again."
	MsgNeedsFull   = "Command ignored—needs full structure command."
	MsgMoving      = "Moving to safe distance..."
	MsgExecuting   = "Executing build..."
	msgSkippedFmt  = "Build skipped: %v"
	msgWalkingFmt  = "Walking to %d %d %d"
	gotoDirective  = "goto"
	structureCoord = 6
)

type State int32

const (
	StateIdle State = iota
	StateProcessing
)

func (s State) String() string {
	if s == StateProcessing {
		return "PROCESSING"
	}
	return "IDLE"
}

// World is the session the builder acts through.
type World interface {
	surface.BlockQuerier
	Chat(ctx context.Context, text string) error
	Position() geometry.Point
	GoTo(ctx context.Context, target geometry.Point, tolerance float64) error
	Ready(ctx context.Context) error
}

type Translator interface {
	Translate(ctx context.Context, userText string, pos geometry.Point) string
}

// nopTranslator yields no command, so free text ends as no_command.
type nopTranslator struct{}

func (nopTranslator) Translate(context.Context, string, geometry.Point) string { return "" }

type Config struct {
	SafeMargin     int
	MoveTimeout    time.Duration
	MoveTolerance  float64
	ArriveDistance int
	SettleDelay    time.Duration
	ReadyTimeout   time.Duration

	Ceiling  int
	Floor    int
	Fallback int
}

func DefaultConfig() Config {
	return Config{
		SafeMargin:     3,
		MoveTimeout:    30 * time.Second,
		MoveTolerance:  1,
		ArriveDistance: 2,
		SettleDelay:    300 * time.Millisecond,
		ReadyTimeout:   10 * time.Second,
		Ceiling:        surface.DefaultCeiling,
		Floor:          surface.DefaultFloor,
		Fallback:       surface.DefaultFallback,
	}
}

type Deps struct {
	Queue      *Queue
	World      World
	Translator Translator
	Materials  *materials.Table
	Recorder   Recorder
	Logger     *log.Logger
	// OnStatus is called when the dispatcher goes idle or busy.
	OnStatus func(queueLength int, state State)
}

type Dispatcher struct {
	cfg        Config
	queue      *Queue
	world      World
	translator Translator
	locator    *surface.Locator
	materials  *materials.Table
	recorder   Recorder
	log        *log.Logger
	onStatus   func(int, State)

	state atomic.Int32
}

func New(cfg Config, d Deps) *Dispatcher {
	if d.Queue == nil {
		d.Queue = NewQueue()
	}
	if d.Materials == nil {
		d.Materials = materials.Default()
	}
	if d.Translator == nil {
		d.Translator = nopTranslator{}
	}
	if d.Logger == nil {
		d.Logger = log.New(io.Discard, "", 0)
	}
	if cfg.SafeMargin < 1 {
		cfg.SafeMargin = 1
	}
	return &Dispatcher{
		cfg:        cfg,
		queue:      d.Queue,
		world:      d.World,
		translator: d.Translator,
		locator: &surface.Locator{
			World:    d.World,
			Ceiling:  cfg.Ceiling,
			Floor:    cfg.Floor,
			Fallback: cfg.Fallback,
		},
		materials: d.Materials,
		recorder:  d.Recorder,
		log:       d.Logger,
		onStatus:  d.OnStatus,
	}
}

func (d *Dispatcher) Queue() *Queue { return d.queue }

func (d *Dispatcher) State() State { return State(d.state.Load()) }

func (d *Dispatcher) setState(s State) {
	d.state.Store(int32(s))
	if d.onStatus != nil {
		d.onStatus(d.queue.Len(), s)
	}
}

// Run handles queued requests one at a time until ctx is done or the queue is
// closed and drained.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		req, err := d.queue.Dequeue(ctx)
		if err != nil {
			return err
		}
		d.setState(StateProcessing)
		d.Handle(ctx, req)
		d.setState(StateIdle)
	}
}

// Handle runs the full pipeline for one request. It never fails: every problem
// is reported in the returned outcome, in chat and in the log.
func (d *Dispatcher) Handle(ctx context.Context, req Request) (out Outcome) {
	out = Outcome{Request: req, StartedAt: time.Now().UTC()}
	defer func() {
		out.FinishedAt = time.Now().UTC()
		d.finish(out)
	}()

	text := strings.TrimSpace(req.Text)
	if text == "" {
		out.Kind = KindIgnored
		return out
	}
	if err := d.ready(ctx); err != nil {
		out.Kind = KindSkipped
		out.Err = err.Error()
		return out
	}

	if fields := strings.Fields(text); strings.EqualFold(fields[0], gotoDirective) {
		d.handleGoto(ctx, &out, fields)
		return out
	}

	if command.IsPassThrough(text) {
		out.Kind = KindPassThrough
		if err := d.emit(ctx, &out, command.PassThrough{Text: text}); err != nil {
			out.Err = err.Error()
		}
		return out
	}

	translated := d.translator.Translate(ctx, text, d.world.Position())
	out.Translated = translated
	if translated == "" {
		out.Kind = KindNoCommand
		d.say(ctx, &out, MsgNoCommand)
		return out
	}

	instrs := command.Parse(translated, func(pe command.ParseError) {
		d.log.Printf("parse: %v", pe)
	})
	if len(instrs) > 0 {
		d.handleBuilds(ctx, &out, instrs)
		return out
	}
	d.handleStructural(ctx, &out, translated)
	return out
}

func (d *Dispatcher) handleGoto(ctx context.Context, out *Outcome, fields []string) {
	if len(fields) != 4 {
		out.Kind = KindIgnored
		out.Err = "usage: goto x y z"
		return
	}
	var p [3]int
	for i, f := range fields[1:] {
		n, err := strconv.Atoi(f)
		if err != nil {
			out.Kind = KindIgnored
			out.Err = "usage: goto x y z"
			return
		}
		p[i] = n
	}
	target := geometry.Point{X: p[0], Y: p[1], Z: p[2]}
	d.say(ctx, out, fmt.Sprintf(msgWalkingFmt, target.X, target.Y, target.Z))
	if err := d.moveTo(ctx, target); err != nil {
		out.Kind = KindSkipped
		out.Err = err.Error()
		return
	}
	out.Kind = KindMoved
}

func (d *Dispatcher) handleBuilds(ctx context.Context, out *Outcome, instrs []command.BuildInstruction) {
	out.Kind = KindSkipped
	for _, in := range instrs {
		res := d.build(ctx, out, in)
		if res.Status != BuildSkipped {
			out.Kind = KindBuilt
		}
		if res.Err != "" && out.Err == "" {
			out.Err = res.Err
		}
		out.Builds = append(out.Builds, res)
	}
}

func (d *Dispatcher) build(ctx context.Context, out *Outcome, in command.BuildInstruction) BuildResult {
	res := BuildResult{Instruction: in, Material: d.resolveMaterial(in.Material)}
	skip := func(err error) BuildResult {
		res.Status = BuildSkipped
		res.Err = err.Error()
		d.say(ctx, out, fmt.Sprintf(msgSkippedFmt, err))
		return res
	}

	groundY, err := d.locator.FindGroundLevel(ctx, in.OriginX, in.OriginZ)
	if err != nil {
		return skip(err)
	}
	res.GroundY = groundY

	s := in.Structure()
	s.Material = res.Material
	res.SafePoint = geometry.SafePoint(geometry.Footprint(s, groundY), groundY, d.cfg.SafeMargin)

	d.say(ctx, out, MsgMoving)
	if err := d.moveTo(ctx, res.SafePoint); err != nil {
		return skip(err)
	}
	d.say(ctx, out, MsgExecuting)

	for _, op := range geometry.Synthesize(s, groundY) {
		if op.Box.Empty() {
			continue
		}
		if res.Fills > 0 {
			if err := d.settle(ctx); err != nil {
				res.Status = BuildFailed
				res.Err = err.Error()
				return res
			}
		}
		if err := d.emit(ctx, out, command.FromOperation(op)); err != nil {
			res.Status = BuildFailed
			res.Err = fmt.Sprintf("%s: %v", op.Part, err)
			return res
		}
		res.Fills++
	}
	res.Status = BuildBuilt
	d.log.Printf("build done %s ground=%d fills=%d", in, groundY, res.Fills)
	return res
}

// handleStructural covers model replies that are a raw structure command
// rather than a build instruction.
func (d *Dispatcher) handleStructural(ctx context.Context, out *Outcome, line string) {
	coords := command.ParseCoords(line)
	if len(coords) < structureCoord {
		out.Kind = KindIgnored
		d.say(ctx, out, MsgNeedsFull)
		return
	}
	box := geometry.BoxFromCorners(
		geometry.Point{X: coords[0], Y: coords[1], Z: coords[2]},
		geometry.Point{X: coords[3], Y: coords[4], Z: coords[5]},
	)
	target := geometry.SafePoint(box, d.world.Position().Y, d.cfg.SafeMargin)

	d.say(ctx, out, MsgMoving)
	if err := d.moveTo(ctx, target); err != nil {
		out.Kind = KindSkipped
		out.Err = err.Error()
		d.say(ctx, out, fmt.Sprintf(msgSkippedFmt, err))
		return
	}
	d.say(ctx, out, MsgExecuting)
	out.Kind = KindPassThrough
	if err := d.settle(ctx); err != nil {
		out.Err = err.Error()
		return
	}
	if err := d.emit(ctx, out, command.PassThrough{Text: line}); err != nil {
		out.Err = err.Error()
	}
}

func (d *Dispatcher) resolveMaterial(word string) string {
	return materials.Canonical(d.materials.Resolve(word))
}

func (d *Dispatcher) ready(ctx context.Context) error {
	if d.world == nil {
		return ErrNotReady
	}
	if d.cfg.ReadyTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.cfg.ReadyTimeout)
		defer cancel()
	}
	if err := d.world.Ready(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrNotReady, err)
	}
	return nil
}

// moveTo walks to target and confirms the agent ended up within the arrival
// distance.
func (d *Dispatcher) moveTo(ctx context.Context, target geometry.Point) error {
	mctx := ctx
	if d.cfg.MoveTimeout > 0 {
		var cancel context.CancelFunc
		mctx, cancel = context.WithTimeout(ctx, d.cfg.MoveTimeout)
		defer cancel()
	}
	if err := d.world.GoTo(mctx, target, d.cfg.MoveTolerance); err != nil {
		if ctx.Err() == nil && errors.Is(mctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("move to %d %d %d: %w", target.X, target.Y, target.Z, ErrMoveTimeout)
		}
		return fmt.Errorf("move to %d %d %d: %w", target.X, target.Y, target.Z, err)
	}
	pos := d.world.Position()
	if r := d.cfg.ArriveDistance; r > 0 && geometry.DistXZ2(pos, target) > r*r {
		return fmt.Errorf("move to %d %d %d: %w (at %d %d %d)", target.X, target.Y, target.Z, ErrNotArrived, pos.X, pos.Y, pos.Z)
	}
	return nil
}

func (d *Dispatcher) settle(ctx context.Context) error {
	if d.cfg.SettleDelay <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d.cfg.SettleDelay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (d *Dispatcher) emit(ctx context.Context, out *Outcome, c command.Command) error {
	text := c.Render()
	out.Commands = append(out.Commands, text)
	if err := d.world.Chat(ctx, text); err != nil {
		d.log.Printf("emit %q: %v", text, err)
		return err
	}
	return nil
}

// say sends a status line. Failures are logged and otherwise ignored.
func (d *Dispatcher) say(ctx context.Context, out *Outcome, msg string) {
	_ = d.emit(ctx, out, command.Say(msg))
}

func (d *Dispatcher) finish(out Outcome) {
	d.log.Printf("request done id=%s kind=%s cmds=%d builds=%d dur=%s err=%q",
		out.Request.ID, out.Kind, len(out.Commands), len(out.Builds), out.Duration().Round(time.Millisecond), out.Err)
	if d.recorder == nil {
		return
	}
	if err := d.recorder.Record(out); err != nil {
		d.log.Printf("record outcome id=%s: %v", out.Request.ID, err)
	}
}
