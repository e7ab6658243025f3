package storage

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// rawText renders a raw field value the way it is stored in CSV files and
// database columns. ok is false for nil, which becomes an empty cell or NULL.
func rawText(v any) (s string, ok bool) {
	switch t := v.(type) {
	case nil:
		return "", false
	case string:
		return t, true
	case json.Number:
		return t.String(), true
	case time.Time:
		if t.IsZero() {
			return "", false
		}
		return t.Format(time.RFC3339), true
	default:
		return fmt.Sprint(t), true
	}
}

// rawValue is the inverse of rawText: blank text reads back as nil so the
// normalizer treats it as missing.
func rawValue(s string) any {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return s
}
