package termination

import (
	"encoding/hex"
	"encoding/json"

	"github.com/zeebo/blake3"
)

// HashInput returns a stable digest of a tool call input. JSON inputs are
// canonicalised first so that key order and whitespace do not matter.
func HashInput(input json.RawMessage) string {
	data := []byte(input)
	var v interface{}
	if err := json.Unmarshal(input, &v); err == nil {
		if canonical, err := json.Marshal(v); err == nil {
			data = canonical
		}
	}
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:16])
}
