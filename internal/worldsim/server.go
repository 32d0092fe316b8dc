package worldsim

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"voxelbuild.ai/internal/protocol"
)

type Server struct {
	world *World
	log   *log.Logger

	upgrader websocket.Upgrader
}

func NewServer(w *World, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Server{
		world: w,
		log:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 16 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

func (s *Server) World() *World { return s.world }

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		agentID := s.handshake(conn)
		if agentID == "" {
			return
		}
		defer s.world.Leave(agentID)
		s.log.Printf("agent joined id=%s", agentID)

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		out := make(chan []byte, 32)

		// Writer goroutine.
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case b := <-out:
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						cancel()
						return
					}
				}
			}
		}()

		send := func(v any) {
			b, err := json.Marshal(v)
			if err != nil {
				return
			}
			select {
			case out <- b:
			case <-ctx.Done():
			}
		}

		conn.SetPingHandler(func(data string) error {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(5*time.Second))
		})

		// Reader loop.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			base, err := protocol.DecodeBase(msg)
			if err != nil || !protocol.IsSupportedVersion(base.ProtocolVersion) {
				continue
			}
			switch base.Type {
			case protocol.TypeChat:
				var m protocol.ChatMsg
				if err := json.Unmarshal(msg, &m); err != nil {
					send(chatResult(base.ID, Result{Code: protocol.ErrProtoBadRequest, Message: "bad CHAT"}))
					continue
				}
				res := s.world.Exec(agentID, m.Text)
				if !res.OK() {
					s.log.Printf("command rejected agent=%s code=%s text=%q", agentID, res.Code, m.Text)
				}
				send(chatResult(m.ID, res))
				if strings.HasPrefix(strings.ToLower(strings.TrimSpace(m.Text)), "/tp") && res.OK() {
					pos, _ := s.world.Position(agentID)
					send(protocol.StateMsg{Type: protocol.TypeState, ProtocolVersion: protocol.Version, Pos: pos})
				}

			case protocol.TypeBlockQuery:
				var m protocol.BlockQueryMsg
				if err := json.Unmarshal(msg, &m); err != nil {
					send(protocol.BlockMsg{Type: protocol.TypeBlock, ProtocolVersion: protocol.Version, ID: base.ID, ErrorCode: protocol.ErrProtoBadRequest})
					continue
				}
				resp := protocol.BlockMsg{Type: protocol.TypeBlock, ProtocolVersion: protocol.Version, ID: m.ID, Pos: m.Pos}
				cfg := s.world.Config()
				if m.Pos[1] < cfg.Floor || m.Pos[1] > cfg.Ceiling {
					resp.ErrorCode = protocol.ErrOutOfBounds
				} else {
					resp.Block, resp.Solid = s.world.BlockAt(m.Pos[0], m.Pos[1], m.Pos[2])
				}
				send(resp)

			case protocol.TypeGoto:
				var m protocol.GotoMsg
				if err := json.Unmarshal(msg, &m); err != nil {
					pos, _ := s.world.Position(agentID)
					send(protocol.GotoResultMsg{
						Type:            protocol.TypeGotoResult,
						ProtocolVersion: protocol.Version,
						ID:              base.ID,
						Pos:             pos,
						ErrorCode:       protocol.ErrProtoBadRequest,
						Message:         "bad GOTO",
					})
					continue
				}
				pos, res := s.world.Goto(agentID, m.Target)
				send(protocol.GotoResultMsg{
					Type:            protocol.TypeGotoResult,
					ProtocolVersion: protocol.Version,
					ID:              m.ID,
					OK:              res.OK(),
					Pos:             pos,
					ErrorCode:       res.Code,
					Message:         res.Message,
				})
			}
		}
		s.log.Printf("agent left id=%s", agentID)
	}
}

func chatResult(id string, res Result) protocol.ChatResultMsg {
	return protocol.ChatResultMsg{
		Type:            protocol.TypeChatResult,
		ProtocolVersion: protocol.Version,
		ID:              id,
		OK:              res.OK(),
		ErrorCode:       res.Code,
		Message:         res.Message,
	}
}

func (s *Server) handshake(conn *websocket.Conn) string {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return ""
	}

	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeHello {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected HELLO"), time.Now().Add(time.Second))
		return ""
	}
	var hello protocol.HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil {
		return ""
	}
	if !protocol.IsSupportedVersion(hello.ProtocolVersion) {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "bad protocol_version"), time.Now().Add(time.Second))
		return ""
	}
	if hello.AgentName == "" {
		hello.AgentName = "agent"
	}

	id, spawn := s.world.Join(hello.AgentName)
	cfg := s.world.Config()
	welcome := protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		AgentID:         id,
		Spawn:           spawn,
		WorldParams: protocol.WorldParams{
			Ceiling:   cfg.Ceiling,
			Floor:     cfg.Floor,
			BoundaryR: cfg.BoundaryR,
		},
	}
	b, err := json.Marshal(welcome)
	if err != nil {
		s.world.Leave(id)
		return ""
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
		s.world.Leave(id)
		return ""
	}
	return id
}
