package primitives

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
)

// ComputeVersion returns d.Version when set, otherwise a content hash:
// SHA256(definition JSON)[:8] in hex.
func ComputeVersion(d *Definition) string {
	if d.Version != "" {
		return d.Version
	}
	data, err := json.Marshal(d)
	if err != nil {
		return "invalid"
	}
	hash := sha256.Sum256(data)
	return fmt.Sprintf("%x", hash[:8])
}
