package protocol

import "encoding/json"

const Version = "1.0"

// Message types.
const (
	TypeHello      = "HELLO"
	TypeWelcome    = "WELCOME"
	TypeState      = "STATE"
	TypeChat       = "CHAT"
	TypeChatResult = "CHAT_RESULT"
	TypeBlockQuery = "BLOCK_QUERY"
	TypeBlock      = "BLOCK"
	TypeGoto       = "GOTO"
	TypeGotoResult = "GOTO_RESULT"
)

// BaseMessage lets us route unknown JSON messages by type.
type BaseMessage struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version,omitempty"`
	ID              string `json:"id,omitempty"`
}

func DecodeBase(b []byte) (BaseMessage, error) {
	var m BaseMessage
	err := json.Unmarshal(b, &m)
	return m, err
}

func IsSupportedVersion(v string) bool {
	return v == Version
}
