package storage

import "encoding/json"

func encodeJSON(v any) ([]byte, error) { return json.Marshal(v) }
func decodeJSON(b []byte, v any) error { return json.Unmarshal(b, v) }

// KeyUpperBound returns the smallest key greater than every key with the
// given prefix, for bounded pebble iteration.
func KeyUpperBound(prefix []byte) []byte {
	end := make([]byte, len(prefix))
	copy(end, prefix)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil // prefix is all 0xff
}
