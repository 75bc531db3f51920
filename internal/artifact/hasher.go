package artifact

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strconv"
	"strings"
)

// HashElement computes the content hash of an element: a stable SHA-256 over
// its kind and canonicalized prebuild payload. Uses length-prefixed field
// encoding to avoid delimiter ambiguity. Dependencies are derived data and
// deliberately excluded: an element only counts as updated when its own
// compiled payload changes.
func HashElement(el Element) string {
	parts := []string{
		string(el.Kind),
		string(canonicalJSON(el.Prebuild)),
	}
	return hashFields(parts)
}

// hashFields computes SHA-256 of length-prefixed fields.
// Format: ${len}:${value}${len}:${value}... where empty → 0:
func hashFields(fields []string) string {
	var builder strings.Builder
	for _, field := range fields {
		builder.WriteString(strconv.Itoa(len(field)))
		builder.WriteByte(':')
		builder.WriteString(field)
	}
	hash := sha256.Sum256([]byte(builder.String()))
	return hex.EncodeToString(hash[:])
}

// canonicalJSON re-encodes a JSON payload into Go's canonical form (compact,
// object keys sorted) so that semantically equal payloads hash equally
// regardless of how the producer formatted them. Payloads that fail to parse
// are hashed as-is.
func canonicalJSON(raw json.RawMessage) []byte {
	if len(raw) == 0 {
		return nil
	}
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return raw
	}
	out, err := json.Marshal(v)
	if err != nil {
		return raw
	}
	return out
}
