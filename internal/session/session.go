package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"voxelbuild.ai/internal/geometry"
	"voxelbuild.ai/internal/protocol"
	"voxelbuild.ai/internal/surface"
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = 20 * time.Second
)

var (
	ErrNotConnected = errors.New("world session not connected")
	ErrClosed       = errors.New("world session closed")
)

// WorldError is a command the world answered with an error code.
type WorldError struct {
	Op      string
	Code    string
	Message string
}

func (e *WorldError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Code)
	}
	return fmt.Sprintf("%s: %s: %s", e.Op, e.Code, e.Message)
}

type Config struct {
	WorldWSURL      string
	AgentName       string
	RequestTimeout  time.Duration
	StartupCommands []string
}

type Status struct {
	Connected       bool      `json:"connected"`
	AgentID         string    `json:"agent_id,omitempty"`
	WorldWSURL      string    `json:"world_ws_url"`
	Pos             [3]int    `json:"pos"`
	LastConnectedAt time.Time `json:"last_connected_at,omitempty"`
	LastError       string    `json:"last_error,omitempty"`
}

type result struct {
	raw json.RawMessage
	err error
}

// Session is a reconnecting client for the world gateway. It serves chat,
// block queries and movement to the build pipeline.
type Session struct {
	cfg Config
	log *log.Logger

	mu sync.RWMutex

	startOnce sync.Once
	closeOnce sync.Once
	stop      chan struct{}
	done      chan struct{}

	connected       bool
	lastConnectedAt time.Time
	lastErr         string

	conn    *websocket.Conn
	writeMu sync.Mutex

	agentID string
	welcome protocol.WelcomeMsg
	pos     [3]int

	pending map[string]chan result
	nextID  atomic.Uint64

	readyNotify chan struct{}
}

func New(cfg Config, logger *log.Logger) *Session {
	if cfg.AgentName == "" {
		cfg.AgentName = "CityBuilderBot"
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 5 * time.Second
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Session{
		cfg:         cfg,
		log:         logger,
		stop:        make(chan struct{}),
		done:        make(chan struct{}),
		pending:     map[string]chan result{},
		readyNotify: make(chan struct{}, 1),
	}
}

func (s *Session) Start() {
	s.startOnce.Do(func() {
		go s.run()
	})
}

func (s *Session) Close() {
	s.closeOnce.Do(func() {
		close(s.stop)
		// Closing the conn unblocks the read loop.
		s.Disconnect()
		s.startOnce.Do(func() { close(s.done) })
		<-s.done
	})
}

func (s *Session) Disconnect() {
	s.mu.Lock()
	c := s.conn
	s.conn = nil
	s.connected = false
	s.mu.Unlock()
	if c != nil {
		_ = c.Close()
	}
	s.failPending(ErrNotConnected)
}

func (s *Session) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Status{
		Connected:       s.connected,
		AgentID:         s.agentID,
		WorldWSURL:      s.cfg.WorldWSURL,
		Pos:             s.pos,
		LastConnectedAt: s.lastConnectedAt,
		LastError:       s.lastErr,
	}
}

// Position is the last position reported by the world.
func (s *Session) Position() geometry.Point {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return geometry.Point{X: s.pos[0], Y: s.pos[1], Z: s.pos[2]}
}

func (s *Session) WorldParams() protocol.WorldParams {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.welcome.WorldParams
}

// Ready blocks until the session has been welcomed by the world.
func (s *Session) Ready(ctx context.Context) error {
	for {
		s.mu.RLock()
		ok := s.connected
		s.mu.RUnlock()
		if ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("wait for world: %w", ctx.Err())
		case <-s.stop:
			return ErrClosed
		case <-s.readyNotify:
		}
	}
}

// Chat sends one chat line or slash command and waits for the world to accept it.
func (s *Session) Chat(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return fmt.Errorf("chat: empty text")
	}
	ctx, cancel := s.withRequestTimeout(ctx)
	defer cancel()

	id := s.newID("C")
	raw, err := s.request(ctx, id, protocol.ChatMsg{
		Type:            protocol.TypeChat,
		ProtocolVersion: protocol.Version,
		ID:              id,
		Text:            text,
	})
	if err != nil {
		return fmt.Errorf("chat: %w", err)
	}
	var res protocol.ChatResultMsg
	if err := json.Unmarshal(raw, &res); err != nil {
		return fmt.Errorf("chat: decode result: %w", err)
	}
	if !res.OK {
		return &WorldError{Op: "chat", Code: res.ErrorCode, Message: res.Message}
	}
	return nil
}

// BlockAt reads one cell.
func (s *Session) BlockAt(ctx context.Context, x, y, z int) (surface.Block, error) {
	ctx, cancel := s.withRequestTimeout(ctx)
	defer cancel()

	id := s.newID("B")
	raw, err := s.request(ctx, id, protocol.BlockQueryMsg{
		Type:            protocol.TypeBlockQuery,
		ProtocolVersion: protocol.Version,
		ID:              id,
		Pos:             [3]int{x, y, z},
	})
	if err != nil {
		return surface.Block{}, fmt.Errorf("block at %d,%d,%d: %w", x, y, z, err)
	}
	var res protocol.BlockMsg
	if err := json.Unmarshal(raw, &res); err != nil {
		return surface.Block{}, fmt.Errorf("block at %d,%d,%d: decode: %w", x, y, z, err)
	}
	if res.ErrorCode != "" {
		return surface.Block{}, &WorldError{Op: "block_query", Code: res.ErrorCode}
	}
	return surface.Block{ID: res.Block, Solid: res.Solid}, nil
}

// GoTo asks the movement engine to walk to target and waits for arrival or
// failure. The caller's context bounds the wait.
func (s *Session) GoTo(ctx context.Context, target geometry.Point, tolerance float64) error {
	id := s.newID("G")
	raw, err := s.request(ctx, id, protocol.GotoMsg{
		Type:            protocol.TypeGoto,
		ProtocolVersion: protocol.Version,
		ID:              id,
		Target:          [3]int{target.X, target.Y, target.Z},
		Tolerance:       tolerance,
	})
	if err != nil {
		return fmt.Errorf("goto %d,%d,%d: %w", target.X, target.Y, target.Z, err)
	}
	var res protocol.GotoResultMsg
	if err := json.Unmarshal(raw, &res); err != nil {
		return fmt.Errorf("goto: decode result: %w", err)
	}
	if !res.OK {
		return &WorldError{Op: "goto", Code: res.ErrorCode, Message: res.Message}
	}
	return nil
}

func (s *Session) withRequestTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.cfg.RequestTimeout)
}

func (s *Session) newID(prefix string) string {
	return fmt.Sprintf("%s%d", prefix, s.nextID.Add(1))
}

func (s *Session) request(ctx context.Context, id string, msg any) (json.RawMessage, error) {
	b, err := json.Marshal(msg)
	if err != nil {
		return nil, err
	}
	ch := make(chan result, 1)

	s.mu.Lock()
	conn := s.conn
	if conn == nil || !s.connected {
		s.mu.Unlock()
		return nil, ErrNotConnected
	}
	s.pending[id] = ch
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.pending, id)
		s.mu.Unlock()
	}()

	s.writeMu.Lock()
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	err = conn.WriteMessage(websocket.TextMessage, b)
	s.writeMu.Unlock()
	if err != nil {
		return nil, err
	}

	select {
	case r := <-ch:
		return r.raw, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.stop:
		return nil, ErrClosed
	}
}

func (s *Session) deliver(id string, raw []byte) {
	s.mu.Lock()
	ch, ok := s.pending[id]
	if ok {
		delete(s.pending, id)
	}
	s.mu.Unlock()
	if ok {
		ch <- result{raw: append(json.RawMessage(nil), raw...)}
	}
}

func (s *Session) failPending(err error) {
	s.mu.Lock()
	pending := s.pending
	s.pending = map[string]chan result{}
	s.mu.Unlock()
	for _, ch := range pending {
		ch <- result{err: err}
	}
}

func (s *Session) run() {
	defer close(s.done)

	backoff := 200 * time.Millisecond
	for {
		select {
		case <-s.stop:
			s.Disconnect()
			return
		default:
		}

		if err := s.connectAndReadLoop(); err != nil {
			s.mu.Lock()
			s.connected = false
			s.conn = nil
			s.lastErr = err.Error()
			s.mu.Unlock()
			s.failPending(ErrNotConnected)
			s.log.Printf("world session: %v (retry in %s)", err, backoff)
			select {
			case <-s.stop:
				s.Disconnect()
				return
			case <-time.After(backoff):
			}
			if backoff < 5*time.Second {
				backoff *= 2
				if backoff > 5*time.Second {
					backoff = 5 * time.Second
				}
			}
			continue
		}
		// Stopped.
		return
	}
}

func (s *Session) connectAndReadLoop() error {
	d := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	conn, resp, err := d.Dial(s.cfg.WorldWSURL, http.Header{})
	if err != nil {
		return err
	}
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}

	hello := protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		AgentName:       s.cfg.AgentName,
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if err := conn.WriteJSON(hello); err != nil {
		_ = conn.Close()
		return err
	}

	s.mu.Lock()
	s.conn = conn
	s.lastErr = ""
	s.mu.Unlock()

	// The world may stay silent between requests; pings keep the read
	// deadline moving while the peer is alive.
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	pingDone := make(chan struct{})
	defer close(pingDone)
	go s.pingLoop(conn, pingDone)

	for {
		select {
		case <-s.stop:
			_ = conn.Close()
			return nil
		default:
		}

		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			_ = conn.Close()
			select {
			case <-s.stop:
				return nil
			default:
			}
			return err
		}
		base, err := protocol.DecodeBase(msg)
		if err != nil || !protocol.IsSupportedVersion(base.ProtocolVersion) {
			continue
		}
		switch base.Type {
		case protocol.TypeWelcome:
			var w protocol.WelcomeMsg
			if err := json.Unmarshal(msg, &w); err != nil {
				continue
			}
			s.mu.Lock()
			first := s.lastConnectedAt.IsZero()
			s.welcome = w
			s.agentID = w.AgentID
			s.pos = w.Spawn
			s.connected = true
			s.lastConnectedAt = time.Now()
			s.mu.Unlock()
			s.log.Printf("world session: welcome agent_id=%s spawn=%v", w.AgentID, w.Spawn)
			select {
			case s.readyNotify <- struct{}{}:
			default:
			}
			if first && len(s.cfg.StartupCommands) > 0 {
				go s.sendStartupCommands()
			}

		case protocol.TypeState:
			var st protocol.StateMsg
			if err := json.Unmarshal(msg, &st); err != nil {
				continue
			}
			s.mu.Lock()
			s.pos = st.Pos
			s.mu.Unlock()

		case protocol.TypeGotoResult:
			var g protocol.GotoResultMsg
			if err := json.Unmarshal(msg, &g); err == nil {
				s.mu.Lock()
				s.pos = g.Pos
				s.mu.Unlock()
			}
			s.deliver(base.ID, msg)

		case protocol.TypeChatResult, protocol.TypeBlock:
			s.deliver(base.ID, msg)
		}
	}
}

func (s *Session) pingLoop(conn *websocket.Conn, done <-chan struct{}) {
	t := time.NewTicker(pingPeriod)
	defer t.Stop()
	for {
		select {
		case <-done:
			return
		case <-t.C:
			s.writeMu.Lock()
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
			s.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

func (s *Session) sendStartupCommands() {
	for _, c := range s.cfg.StartupCommands {
		if err := s.Chat(context.Background(), c); err != nil {
			s.log.Printf("world session: startup command %q: %v", c, err)
		}
	}
}
