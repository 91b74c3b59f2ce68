package platform

import (
	"fmt"

	"github.com/google/uuid"
)

func NewID() string {
	return uuid.New().String()
}

// NewMessageID returns an RFC 5322 Message-ID under host.
func NewMessageID(host string) string {
	return fmt.Sprintf("<%s@%s>", uuid.New().String(), host)
}
