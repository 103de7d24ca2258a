package internal

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Fingerprint derives the stored device fingerprint from a user agent and
// client IP. Only the hash is persisted. With neither input there is
// nothing to identify a device by, and the result is empty.
func Fingerprint(userAgent, clientIP string) string {
	userAgent, clientIP = strings.TrimSpace(userAgent), strings.TrimSpace(clientIP)
	if userAgent == "" && clientIP == "" {
		return ""
	}
	v := userAgent + "|" + clientIP
	sum := sha256.Sum256([]byte(v))
	return hex.EncodeToString(sum[:])
}
