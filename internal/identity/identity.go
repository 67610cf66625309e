// Package identity generates the two identifiers the game hands out:
// stable per-participant identities and short shareable session codes.
package identity

import (
	"crypto/rand"
	"math/big"

	"github.com/google/uuid"
)

// codeAlphabet deliberately omits 0/O/1/I to keep codes readable when
// shared out loud.
const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const codeLength = 6

// NewParticipantID returns a stable opaque identity for a participant.
// Clients persist it for the browser/process lifetime and present it on
// every request.
func NewParticipantID() string {
	return uuid.NewString()
}

// NewSessionCode returns a short uppercase alphanumeric code used as the
// session's public identifier and store key.
func NewSessionCode() string {
	buf := make([]byte, codeLength)
	max := big.NewInt(int64(len(codeAlphabet)))
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			// crypto/rand only fails when the platform entropy source is
			// broken; there is no meaningful recovery for id generation.
			panic(err)
		}
		buf[i] = codeAlphabet[n.Int64()]
	}
	return string(buf)
}
