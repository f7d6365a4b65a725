package semantic

import (
	"database/sql/driver"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

// Source is a cleaned source token. The zero Source is the absence-marker
// used for null, blank and not-a-number inputs. Sources are comparable and
// serve as mapping Table keys.
type Source struct {
	text    string
	present bool
}

// Absence is the absence-marker.
var Absence = Source{}

// Token returns the Source for a present, already clean string. An empty
// string is the absence-marker.
func Token(s string) Source {
	if s == "" {
		return Absence
	}
	return Source{text: s, present: true}
}

// Present reports whether s carries a value.
func (s Source) Present() bool { return s.present }

// String returns the token text, or "" for the absence-marker.
func (s Source) String() string { return s.text }

// Clean turns a raw source value into a Source. nil, empty or whitespace-only
// strings, NaN floats and invalid driver.Valuer values become Absence;
// anything else is rendered as text, NFC-normalized and stripped of
// surrounding whitespace. Case is preserved.
func Clean(raw any) Source {
	text, ok := rawText(raw)
	if !ok {
		return Absence
	}
	return Token(strings.TrimSpace(norm.NFC.String(text)))
}

func rawText(raw any) (string, bool) {
	switch v := raw.(type) {
	case nil:
		return "", false
	case Source:
		return v.text, v.present
	case string:
		return v, true
	case *string:
		if v == nil {
			return "", false
		}
		return *v, true
	case []byte:
		if v == nil {
			return "", false
		}
		return string(v), true
	case float64:
		if math.IsNaN(v) {
			return "", false
		}
		return strconv.FormatFloat(v, 'f', -1, 64), true
	case float32:
		if math.IsNaN(float64(v)) {
			return "", false
		}
		return strconv.FormatFloat(float64(v), 'f', -1, 32), true
	case int:
		return strconv.Itoa(v), true
	case int64:
		return strconv.FormatInt(v, 10), true
	case int32:
		return strconv.FormatInt(int64(v), 10), true
	case bool:
		return strconv.FormatBool(v), true
	case time.Time:
		if v.IsZero() {
			return "", false
		}
		if v.Hour() == 0 && v.Minute() == 0 && v.Second() == 0 && v.Nanosecond() == 0 {
			return v.Format("2006-01-02"), true
		}
		return v.Format("2006-01-02 15:04:05"), true
	case driver.Valuer:
		dv, err := v.Value()
		if err != nil {
			return "", false
		}
		return rawText(dv)
	case fmt.Stringer:
		return v.String(), true
	default:
		return fmt.Sprint(v), true
	}
}
