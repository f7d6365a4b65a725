package formats

import (
	"database/sql/driver"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/pancaim/cdm/pkg/cdmerrors"
)

// Null is how absent scalars are rendered.
const Null = "null"

// DateLayout renders dates without a time of day.
const DateLayout = "2006-01-02"

// FormatTime renders t as ISO-8601: a plain date at midnight, a full
// timestamp otherwise.
func FormatTime(t time.Time) string {
	if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 && t.Nanosecond() == 0 {
		return t.Format(DateLayout)
	}
	return t.Format(time.RFC3339Nano)
}

// FormatScalar renders a scalar leaf as text. nil renders as Null, times as
// ISO-8601 and driver.Valuer values through their driver value. Other types
// are rejected with a serialization error.
func FormatScalar(v any) (string, error) {
	switch x := v.(type) {
	case nil:
		return Null, nil
	case string:
		return x, nil
	case []byte:
		return string(x), nil
	case bool:
		return strconv.FormatBool(x), nil
	case int:
		return strconv.Itoa(x), nil
	case int8:
		return strconv.FormatInt(int64(x), 10), nil
	case int16:
		return strconv.FormatInt(int64(x), 10), nil
	case int32:
		return strconv.FormatInt(int64(x), 10), nil
	case int64:
		return strconv.FormatInt(x, 10), nil
	case uint:
		return strconv.FormatUint(uint64(x), 10), nil
	case uint8:
		return strconv.FormatUint(uint64(x), 10), nil
	case uint16:
		return strconv.FormatUint(uint64(x), 10), nil
	case uint32:
		return strconv.FormatUint(uint64(x), 10), nil
	case uint64:
		return strconv.FormatUint(x, 10), nil
	case float32:
		return formatFloat(float64(x), 32), nil
	case float64:
		return formatFloat(x, 64), nil
	case time.Time:
		return FormatTime(x), nil
	case *time.Time:
		if x == nil {
			return Null, nil
		}
		return FormatTime(*x), nil
	case driver.Valuer:
		dv, err := x.Value()
		if err != nil {
			return "", cdmerrors.Wrap(err, cdmerrors.ErrorTypeSerialization, "failed to read scalar value")
		}
		return FormatScalar(dv)
	default:
		return "", cdmerrors.New(cdmerrors.ErrorTypeSerialization, "unsupported scalar type").
			WithDetail("type", fmt.Sprintf("%T", v))
	}
}

func formatFloat(f float64, bits int) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	}
	s := strconv.FormatFloat(f, 'f', -1, bits)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}
