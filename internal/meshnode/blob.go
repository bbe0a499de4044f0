package meshnode

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// EncodeBlob serialises v (a link map, services list, or load average
// triple) as hex-encoded JSON, the self-describing encoding this
// implementation uses in place of the legacy language-specific pickling
// format for opaque structured columns.
func EncodeBlob(v interface{}) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode blob: %w", err)
	}
	return hex.EncodeToString(data), nil
}

// DecodeBlob deserialises a hex-encoded JSON blob into dst. If the stored
// text isn't valid hex/JSON (e.g. a blob written by a legacy pickling
// format never converted), the caller is expected to treat the error as
// "deserialisation failure" per the persistence adapter's error-handling
// contract: log and fall back to an empty value rather than failing the
// read outright.
func DecodeBlob(text string, dst interface{}) error {
	if text == "" {
		return nil
	}
	data, err := hex.DecodeString(text)
	if err != nil {
		return fmt.Errorf("decode blob hex: %w", err)
	}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("decode blob json: %w", err)
	}
	return nil
}
