package protocol

// Error codes carried in CHAT_RESULT, BLOCK and GOTO_RESULT replies. An empty
// code means success.
const (
	// Malformed or out-of-order gateway frames.
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"

	ErrBadRequest     = "E_BAD_REQUEST"
	ErrUnknownCommand = "E_UNKNOWN_COMMAND"
	ErrTooLarge       = "E_TOO_LARGE"
	ErrUnreachable    = "E_UNREACHABLE"
	ErrOutOfBounds    = "E_OUT_OF_BOUNDS"
	ErrInternal       = "E_INTERNAL"
)

// IsKnownCode reports whether code is one a world may send.
func IsKnownCode(code string) bool {
	switch code {
	case "", ErrProtoBadRequest, ErrBadRequest, ErrUnknownCommand,
		ErrTooLarge, ErrUnreachable, ErrOutOfBounds, ErrInternal:
		return true
	}
	return false
}
