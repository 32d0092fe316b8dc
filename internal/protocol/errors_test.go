package protocol

import "testing"

func TestIsKnownCode(t *testing.T) {
	tests := []struct {
		code string
		want bool
	}{
		{"", true},
		{ErrProtoBadRequest, true},
		{ErrBadRequest, true},
		{ErrUnknownCommand, true},
		{ErrTooLarge, true},
		{ErrUnreachable, true},
		{ErrOutOfBounds, true},
		{ErrInternal, true},
		{"E_NOT_DEFINED", false},
		{"e_too_large", false},
		{"OK", false},
	}
	for _, tt := range tests {
		if got := IsKnownCode(tt.code); got != tt.want {
			t.Fatalf("IsKnownCode(%q)=%v want=%v", tt.code, got, tt.want)
		}
	}
}
