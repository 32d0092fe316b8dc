package worldsim

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"voxelbuild.ai/internal/protocol"
)

func dialSim(t *testing.T, w *World) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(NewServer(w, nil).Handler())
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readMsg(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, b, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if err := json.Unmarshal(b, v); err != nil {
		t.Fatalf("decode %s: %v", b, err)
	}
}

func TestServer_Session(t *testing.T) {
	w := New(DefaultConfig())
	conn := dialSim(t, w)

	if err := conn.WriteJSON(protocol.HelloMsg{Type: protocol.TypeHello, ProtocolVersion: protocol.Version, AgentName: "bot"}); err != nil {
		t.Fatalf("hello: %v", err)
	}
	var welcome protocol.WelcomeMsg
	readMsg(t, conn, &welcome)
	if welcome.Type != protocol.TypeWelcome || welcome.AgentID == "" || welcome.WorldParams.Ceiling != 255 {
		t.Fatalf("welcome=%+v", welcome)
	}

	_ = conn.WriteJSON(protocol.BlockQueryMsg{Type: protocol.TypeBlockQuery, ProtocolVersion: protocol.Version, ID: "B1", Pos: [3]int{0, 63, 0}})
	var blk protocol.BlockMsg
	readMsg(t, conn, &blk)
	if blk.ID != "B1" || blk.Block != "minecraft:grass_block" || !blk.Solid {
		t.Fatalf("block=%+v", blk)
	}

	_ = conn.WriteJSON(protocol.BlockQueryMsg{Type: protocol.TypeBlockQuery, ProtocolVersion: protocol.Version, ID: "B2", Pos: [3]int{0, 400, 0}})
	readMsg(t, conn, &blk)
	if blk.ID != "B2" || blk.ErrorCode != protocol.ErrOutOfBounds {
		t.Fatalf("block=%+v", blk)
	}

	_ = conn.WriteJSON(protocol.ChatMsg{Type: protocol.TypeChat, ProtocolVersion: protocol.Version, ID: "C1", Text: "/fill 0 64 0 0 64 0 glass"})
	var cr protocol.ChatResultMsg
	readMsg(t, conn, &cr)
	if cr.ID != "C1" || !cr.OK {
		t.Fatalf("chat result=%+v", cr)
	}
	if b, _ := w.BlockAt(0, 64, 0); b != "minecraft:glass" {
		t.Fatalf("block after fill=%s", b)
	}

	_ = conn.WriteJSON(protocol.ChatMsg{Type: protocol.TypeChat, ProtocolVersion: protocol.Version, ID: "C2", Text: "/nope"})
	readMsg(t, conn, &cr)
	if cr.ID != "C2" || cr.OK || cr.ErrorCode != protocol.ErrUnknownCommand {
		t.Fatalf("chat result=%+v", cr)
	}

	_ = conn.WriteJSON(protocol.GotoMsg{Type: protocol.TypeGoto, ProtocolVersion: protocol.Version, ID: "G1", Target: [3]int{18, 64, 18}, Tolerance: 1})
	var gr protocol.GotoResultMsg
	readMsg(t, conn, &gr)
	if gr.ID != "G1" || !gr.OK || gr.Pos != [3]int{18, 64, 18} {
		t.Fatalf("goto result=%+v", gr)
	}
}

func TestServer_RejectsMissingHello(t *testing.T) {
	conn := dialSim(t, New(DefaultConfig()))
	_ = conn.WriteJSON(protocol.ChatMsg{Type: protocol.TypeChat, ProtocolVersion: protocol.Version, ID: "C1", Text: "/say hi"})

	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, _, err := conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.ClosePolicyViolation) {
		t.Fatalf("err=%v want policy violation close", err)
	}
}

func TestServer_RepliesToMalformedBodies(t *testing.T) {
	w := New(DefaultConfig())
	conn := dialSim(t, w)
	_ = conn.WriteJSON(protocol.HelloMsg{Type: protocol.TypeHello, ProtocolVersion: protocol.Version, AgentName: "bot"})
	var welcome protocol.WelcomeMsg
	readMsg(t, conn, &welcome)

	send := func(raw string) {
		t.Helper()
		if err := conn.WriteMessage(websocket.TextMessage, []byte(raw)); err != nil {
			t.Fatalf("write: %v", err)
		}
	}

	send(`{"type":"CHAT","protocol_version":"1.0","id":"C1","text":5}`)
	var cr protocol.ChatResultMsg
	readMsg(t, conn, &cr)
	if cr.ID != "C1" || cr.OK || cr.ErrorCode != protocol.ErrProtoBadRequest {
		t.Fatalf("chat result=%+v", cr)
	}

	send(`{"type":"BLOCK_QUERY","protocol_version":"1.0","id":"B1","pos":"here"}`)
	var blk protocol.BlockMsg
	readMsg(t, conn, &blk)
	if blk.ID != "B1" || blk.ErrorCode != protocol.ErrProtoBadRequest {
		t.Fatalf("block=%+v", blk)
	}

	send(`{"type":"GOTO","protocol_version":"1.0","id":"G1","target":{"x":1}}`)
	var gr protocol.GotoResultMsg
	readMsg(t, conn, &gr)
	if gr.ID != "G1" || gr.OK || gr.ErrorCode != protocol.ErrProtoBadRequest || gr.Pos != welcome.Spawn {
		t.Fatalf("goto result=%+v", gr)
	}
}
