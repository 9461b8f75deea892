package session

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestValidateToken(t *testing.T) {
	tests := []struct {
		name  string
		token string
		valid bool
	}{
		{"uuid", uuid.New().String(), true},
		{"upper hex", "ABCDEF-0123", true},
		{"single char", "a", true},
		{"empty", "", false},
		{"too long", strings.Repeat("a", 65), false},
		{"path traversal", "../../etc/passwd", false},
		{"forward slash", "abc/def", false},
		{"backslash", `abc\def`, false},
		{"dot dot", "..", false},
		{"non hex letter", "zzzz", false},
		{"whitespace", "abc def", false},
		{"null byte", "abc\x00def", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateToken(tt.token)
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidToken)
			}
		})
	}
}
