package identity

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewSessionCode(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		code := NewSessionCode()
		assert.Len(t, code, 6)
		for _, r := range code {
			assert.Contains(t, codeAlphabet, string(r))
		}
		// No ambiguous characters.
		assert.False(t, strings.ContainsAny(code, "01IO"))
		seen[code] = true
	}
	assert.Greater(t, len(seen), 90, "codes should rarely collide")
}

func TestNewParticipantID(t *testing.T) {
	a := NewParticipantID()
	b := NewParticipantID()
	assert.NotEmpty(t, a)
	assert.NotEqual(t, a, b)
}
