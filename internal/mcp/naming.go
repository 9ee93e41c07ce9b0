package mcp

import (
	"encoding/hex"
	"strings"

	"github.com/zeebo/blake3"
)

// MaxToolNameLength is the longest tool name every provider accepts.
const MaxToolNameLength = 64

const hashSuffixLength = 16

// QualifiedName builds the model-facing name "mcp__<server>__<tool>",
// restricted to [a-zA-Z0-9_-]. Names over MaxToolNameLength keep their
// prefix and end in a short hash of the raw name.
func QualifiedName(server, tool string) string {
	raw := "mcp__" + server + "__" + tool
	name := sanitize(raw)
	if len(name) <= MaxToolNameLength {
		return name
	}
	sum := blake3.Sum256([]byte(raw))
	suffix := hex.EncodeToString(sum[:])[:hashSuffixLength]
	return name[:MaxToolNameLength-hashSuffixLength-1] + "_" + suffix
}

func sanitize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '_' || c == '-' {
			b.WriteByte(c)
		} else {
			b.WriteByte('_')
		}
	}
	if b.Len() == 0 {
		return "_"
	}
	return b.String()
}
