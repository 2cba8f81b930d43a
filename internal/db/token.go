package db

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// NewSessionToken derives an opaque 256-bit session id from the principal,
// the transport, a random UUID and the current time.
func NewSessionToken(empNo, sessionType string) string {
	seed := fmt.Sprintf("%s_%s_%s_%s", empNo, sessionType, uuid.NewString(), time.Now().Format(time.RFC3339Nano))
	sum := sha256.Sum256([]byte(seed))
	return hex.EncodeToString(sum[:])
}
