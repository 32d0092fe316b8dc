// Package worldsim is a small in-memory voxel world that speaks the gateway
// protocol. It has flat terrain, accepts a handful of slash commands and moves
// agents instantly.
package worldsim

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"voxelbuild.ai/internal/geometry"
	"voxelbuild.ai/internal/materials"
	"voxelbuild.ai/internal/protocol"
)

type Config struct {
	// Terrain surface: the top grass layer sits at GroundY-1.
	GroundY       int
	Ceiling       int
	Floor         int
	BoundaryR     int
	MaxFillVolume int
	Spawn         [3]int
}

func DefaultConfig() Config {
	return Config{
		GroundY:       64,
		Ceiling:       255,
		Floor:         0,
		BoundaryR:     4000,
		MaxFillVolume: 32768,
		Spawn:         [3]int{0, 64, 0},
	}
}

type agent struct {
	id   string
	name string
	pos  [3]int
}

// Result is the world's answer to one chat command.
type Result struct {
	Code    string
	Message string
}

func (r Result) OK() bool { return r.Code == "" }

// World holds terrain overrides and connected agents. All methods are safe for
// concurrent use.
type World struct {
	cfg Config

	mu        sync.Mutex
	blocks    map[[3]int]string
	agents    map[string]*agent
	nextAgent int
	chat      []string
	fills     int
}

func New(cfg Config) *World {
	def := DefaultConfig()
	if cfg.Ceiling <= cfg.Floor {
		cfg.Ceiling = def.Ceiling
	}
	if cfg.BoundaryR <= 0 {
		cfg.BoundaryR = def.BoundaryR
	}
	if cfg.MaxFillVolume <= 0 {
		cfg.MaxFillVolume = def.MaxFillVolume
	}
	return &World{
		cfg:    cfg,
		blocks: map[[3]int]string{},
		agents: map[string]*agent{},
	}
}

func (w *World) Config() Config { return w.cfg }

func (w *World) Join(name string) (id string, spawn [3]int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.nextAgent++
	id = fmt.Sprintf("A%d", w.nextAgent)
	w.agents[id] = &agent{id: id, name: name, pos: w.cfg.Spawn}
	return id, w.cfg.Spawn
}

func (w *World) Leave(id string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.agents, id)
}

func (w *World) Position(id string) ([3]int, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	a, ok := w.agents[id]
	if !ok {
		return [3]int{}, false
	}
	return a.pos, true
}

func (w *World) baseBlock(y int) string {
	switch {
	case y < w.cfg.Floor || y >= w.cfg.GroundY:
		return "minecraft:air"
	case y == w.cfg.GroundY-1:
		return "minecraft:grass_block"
	case y == w.cfg.Floor:
		return "minecraft:bedrock"
	default:
		return "minecraft:dirt"
	}
}

// BlockAt returns the block id at a cell and whether it is solid.
func (w *World) BlockAt(x, y, z int) (string, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	id := w.blockAtLocked(x, y, z)
	return id, materials.Solid(id)
}

func (w *World) blockAtLocked(x, y, z int) string {
	if id, ok := w.blocks[[3]int{x, y, z}]; ok {
		return id
	}
	return w.baseBlock(y)
}

func (w *World) setLocked(x, y, z int, id string) {
	k := [3]int{x, y, z}
	if id == w.baseBlock(y) {
		delete(w.blocks, k)
		return
	}
	w.blocks[k] = id
}

// Chat returns every chat line (including /say text) the world has seen.
func (w *World) Chat() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.chat...)
}

// Fills counts the /fill commands applied so far.
func (w *World) Fills() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.fills
}

// Exec applies one chat line from an agent.
func (w *World) Exec(agentID, text string) Result {
	text = strings.TrimSpace(text)
	if text == "" {
		return Result{Code: protocol.ErrBadRequest, Message: "empty command"}
	}
	if !strings.HasPrefix(text, "/") {
		w.mu.Lock()
		w.chat = append(w.chat, text)
		w.mu.Unlock()
		return Result{}
	}
	fields := strings.Fields(text)
	switch strings.ToLower(strings.TrimLeft(fields[0], "/")) {
	case "say":
		w.mu.Lock()
		w.chat = append(w.chat, strings.TrimSpace(strings.TrimPrefix(text, fields[0])))
		w.mu.Unlock()
		return Result{}
	case "gamemode":
		if len(fields) < 2 {
			return Result{Code: protocol.ErrBadRequest, Message: "usage: /gamemode <mode>"}
		}
		return Result{}
	case "fill":
		return w.fill(fields)
	case "setblock":
		if len(fields) < 5 {
			return Result{Code: protocol.ErrBadRequest, Message: "usage: /setblock x y z block"}
		}
		fill := []string{"/fill"}
		fill = append(fill, fields[1:4]...)
		fill = append(fill, fields[1:4]...)
		return w.fill(append(fill, fields[4:]...))
	case "tp", "teleport":
		return w.teleport(agentID, fields)
	default:
		return Result{Code: protocol.ErrUnknownCommand, Message: "unknown command " + fields[0]}
	}
}

func parseInts(fields []string) ([]int, bool) {
	out := make([]int, 0, len(fields))
	for _, f := range fields {
		n, err := strconv.Atoi(f)
		if err != nil {
			return nil, false
		}
		out = append(out, n)
	}
	return out, true
}

func (w *World) fill(fields []string) Result {
	if len(fields) < 8 {
		return Result{Code: protocol.ErrBadRequest, Message: "usage: /fill x1 y1 z1 x2 y2 z2 block"}
	}
	n, ok := parseInts(fields[1:7])
	if !ok {
		return Result{Code: protocol.ErrBadRequest, Message: "bad coordinates"}
	}
	box := geometry.BoxFromCorners(
		geometry.Point{X: n[0], Y: n[1], Z: n[2]},
		geometry.Point{X: n[3], Y: n[4], Z: n[5]},
	)
	if v := box.Volume(); v > w.cfg.MaxFillVolume {
		return Result{Code: protocol.ErrTooLarge, Message: fmt.Sprintf("volume %d exceeds %d", v, w.cfg.MaxFillVolume)}
	}
	if box.Y1 < w.cfg.Floor || box.Y2 > w.cfg.Ceiling {
		return Result{Code: protocol.ErrOutOfBounds, Message: "outside build height"}
	}
	id := materials.Canonical(fields[7])
	if id == "" || strings.Count(id, ":") != 1 {
		return Result{Code: protocol.ErrBadRequest, Message: "bad block " + fields[7]}
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	box.Cells(func(x, y, z int) bool {
		w.setLocked(x, y, z, id)
		return true
	})
	w.fills++
	return Result{}
}

func (w *World) teleport(agentID string, fields []string) Result {
	// Accept "/tp x y z" and "/tp <target> x y z".
	if len(fields) < 4 {
		return Result{Code: protocol.ErrBadRequest, Message: "usage: /tp x y z"}
	}
	n, ok := parseInts(fields[len(fields)-3:])
	if !ok {
		return Result{Code: protocol.ErrBadRequest, Message: "bad coordinates"}
	}
	pos := [3]int{n[0], n[1], n[2]}
	if !w.inBounds(pos) {
		return Result{Code: protocol.ErrOutOfBounds, Message: "outside world boundary"}
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	a, ok := w.agents[agentID]
	if !ok {
		return Result{Code: protocol.ErrBadRequest, Message: "unknown agent"}
	}
	a.pos = pos
	return Result{}
}

func (w *World) inBounds(pos [3]int) bool {
	r := w.cfg.BoundaryR
	return pos[0] >= -r && pos[0] <= r && pos[2] >= -r && pos[2] <= r
}

// Goto moves an agent to target. The simulator has no pathfinding: any target
// inside the boundary is reached at once.
func (w *World) Goto(agentID string, target [3]int) ([3]int, Result) {
	w.mu.Lock()
	defer w.mu.Unlock()
	a, ok := w.agents[agentID]
	if !ok {
		return [3]int{}, Result{Code: protocol.ErrBadRequest, Message: "unknown agent"}
	}
	if !w.inBounds(target) {
		return a.pos, Result{Code: protocol.ErrUnreachable, Message: "target outside world boundary"}
	}
	a.pos = target
	return a.pos, Result{}
}
