package dataset

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Record is one inference input keyed by column name. Values may be
// strings, numbers, or nil.
type Record map[string]any

// missingMarkers are the raw cell values treated as missing.
var missingMarkers = map[string]struct{}{
	"":     {},
	"NA":   {},
	"NaN":  {},
	"nan":  {},
	"null": {},
	"NULL": {},
}

// IsMissing reports whether a raw cell denotes a missing value.
func IsMissing(cell string) bool {
	_, ok := missingMarkers[strings.TrimSpace(cell)]
	return ok
}

// ParseNumber parses a numeric cell. Missing cells yield NaN with ok=true;
// cells that are neither missing nor numeric yield ok=false.
func ParseNumber(cell string) (v float64, ok bool) {
	if IsMissing(cell) {
		return math.NaN(), true
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(cell), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// Cell renders a record value as a raw cell. ok is false for value types
// that have no cell representation.
func Cell(v any) (cell string, ok bool) {
	switch x := v.(type) {
	case nil:
		return "", true
	case string:
		return x, true
	case float64:
		if math.IsNaN(x) {
			return "", true
		}
		return strconv.FormatFloat(x, 'g', -1, 64), true
	case float32:
		return Cell(float64(x))
	case int:
		return strconv.Itoa(x), true
	case int64:
		return strconv.FormatInt(x, 10), true
	case int32:
		return strconv.FormatInt(int64(x), 10), true
	case fmt.Stringer:
		return x.String(), true
	default:
		return "", false
	}
}
