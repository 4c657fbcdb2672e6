package capture

import (
	"crypto/sha256"
	"encoding/hex"
	"unicode/utf8"
)

func truncateBytes(in []byte, maxBytes int) ([]byte, bool, int, string) {
	if maxBytes <= 0 || len(in) <= maxBytes {
		return in, false, len(in), ""
	}
	sum := sha256.Sum256(in)
	return in[:maxBytes], true, len(in), hex.EncodeToString(sum[:])
}

func truncateStringBytes(in string, maxBytes int) (string, bool, int, string) {
	raw := []byte(in)
	out, truncated, origLen, hash := truncateBytes(raw, maxBytes)
	return string(out), truncated, origLen, hash
}

// truncateText cuts s to at most maxBytes without splitting a UTF-8 sequence.
func truncateText(s string, maxBytes int) string {
	if maxBytes <= 0 || len(s) <= maxBytes {
		return s
	}
	cut := maxBytes
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "…"
}
