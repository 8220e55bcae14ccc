package codec

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// respID keeps an upstream-assigned id unchanged and mints one with the wire
// prefix ("chatcmpl-", "msg_", "resp_") otherwise.
func respID(id, prefix string) string {
	if strings.TrimSpace(id) != "" {
		return id
	}
	return prefix + randomHex(12)
}

func randomHex(n int) string {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(b)
}
