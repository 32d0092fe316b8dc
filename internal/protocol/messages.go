package protocol

// HELLO (client -> server)
type HelloMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	AgentName       string `json:"agent_name"`
}

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type            string      `json:"type"`
	ProtocolVersion string      `json:"protocol_version"`
	AgentID         string      `json:"agent_id"`
	Spawn           [3]int      `json:"spawn"`
	WorldParams     WorldParams `json:"world_params"`
}

type WorldParams struct {
	Ceiling   int `json:"ceiling"`
	Floor     int `json:"floor"`
	BoundaryR int `json:"boundary_r"`
}

// STATE (server -> client), pushed whenever the agent moves.
type StateMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Pos             [3]int `json:"pos"`
}

// CHAT (client -> server): a chat line or slash command.
type ChatMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ID              string `json:"id"`
	Text            string `json:"text"`
}

// CHAT_RESULT (server -> client)
type ChatResultMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ID              string `json:"id"`
	OK              bool   `json:"ok"`
	ErrorCode       string `json:"error_code,omitempty"`
	Message         string `json:"message,omitempty"`
}

// BLOCK_QUERY (client -> server)
type BlockQueryMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ID              string `json:"id"`
	Pos             [3]int `json:"pos"`
}

// BLOCK (server -> client). Block is empty for unloaded cells.
type BlockMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ID              string `json:"id"`
	Pos             [3]int `json:"pos"`
	Block           string `json:"block"`
	Solid           bool   `json:"solid"`
	ErrorCode       string `json:"error_code,omitempty"`
}

// GOTO (client -> server)
type GotoMsg struct {
	Type            string  `json:"type"`
	ProtocolVersion string  `json:"protocol_version"`
	ID              string  `json:"id"`
	Target          [3]int  `json:"target"`
	Tolerance       float64 `json:"tolerance"`
}

// GOTO_RESULT (server -> client)
type GotoResultMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ID              string `json:"id"`
	OK              bool   `json:"ok"`
	Pos             [3]int `json:"pos"`
	ErrorCode       string `json:"error_code,omitempty"`
	Message         string `json:"message,omitempty"`
}
