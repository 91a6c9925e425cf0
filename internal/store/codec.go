package store

import (
	"encoding/json"

	"go.uber.org/zap"
)

// Serialization boundary: nested fields (read receipts, participant lists,
// settings) are typed in process and stored as JSON text. Encoding happens
// only at the point of writing a row; decoding only at the point of reading
// one. A malformed stored value decodes to a zero value instead of failing
// the read path.

func encodeJSON(v any) string {
	if v == nil {
		return ""
	}
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}

func decodeJSON[T any](raw string, out *T, logger *zap.Logger, column string) {
	if raw == "" {
		return
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		var zero T
		*out = zero
		if logger != nil {
			logger.Warn("malformed cached column, returning degraded value",
				zap.String("column", column),
				zap.Error(err))
		}
	}
}

func encodeReadBy(m map[string]int64) string {
	if len(m) == 0 {
		return "{}"
	}
	return encodeJSON(m)
}

func encodeUnread(m map[string]int) string {
	if len(m) == 0 {
		return "{}"
	}
	return encodeJSON(m)
}

func encodeStrings(s []string) string {
	if len(s) == 0 {
		return "[]"
	}
	return encodeJSON(s)
}
