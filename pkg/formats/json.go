package formats

import (
	"bytes"
	"database/sql/driver"
	"fmt"
	"io"
	"math"
	"time"

	gojson "github.com/goccy/go-json"

	"github.com/pancaim/cdm/pkg/cdmerrors"
)

// JSONEncoder writes documents as strict JSON. Ordered maps keep their key
// order and times are rendered like in the hierarchical format.
type JSONEncoder struct {
	Indent string
}

// NewJSONEncoder returns a JSONEncoder indenting with four spaces.
func NewJSONEncoder() *JSONEncoder {
	return &JSONEncoder{Indent: "    "}
}

// Name implements Encoder.
func (e *JSONEncoder) Name() string { return "json" }

// Extension implements Encoder.
func (e *JSONEncoder) Extension() string { return ".json" }

// Encode implements Encoder.
func (e *JSONEncoder) Encode(w io.Writer, doc any) error {
	if _, _, ok := mapping(doc); !ok {
		return cdmerrors.New(cdmerrors.ErrorTypeSerialization, "document root must be a mapping")
	}
	v, err := toJSON(doc)
	if err != nil {
		return err
	}

	enc := gojson.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if e.Indent != "" {
		enc.SetIndent("", e.Indent)
	}
	if err := enc.Encode(v); err != nil {
		return cdmerrors.Wrap(err, cdmerrors.ErrorTypeSerialization, "failed to encode JSON document")
	}
	return nil
}

// jsonObject is an object whose members are marshaled in order.
type jsonObject struct {
	keys   []string
	values []any
}

func (o jsonObject) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range o.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := gojson.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		vb, err := gojson.Marshal(o.values[i])
		if err != nil {
			return nil, err
		}
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func toJSON(v any) (any, error) {
	if keys, get, ok := mapping(v); ok {
		obj := jsonObject{keys: keys, values: make([]any, len(keys))}
		for i, k := range keys {
			cv, err := toJSON(get(k))
			if err != nil {
				return nil, err
			}
			obj.values[i] = cv
		}
		return obj, nil
	}

	switch x := v.(type) {
	case nil, string, bool,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64:
		return x, nil
	case float32:
		return checkFloat(float64(x))
	case float64:
		return checkFloat(x)
	case []byte:
		return string(x), nil
	case time.Time:
		return FormatTime(x), nil
	case *time.Time:
		if x == nil {
			return nil, nil
		}
		return FormatTime(*x), nil
	case driver.Valuer:
		dv, err := x.Value()
		if err != nil {
			return nil, cdmerrors.Wrap(err, cdmerrors.ErrorTypeSerialization, "failed to read scalar value")
		}
		return toJSON(dv)
	default:
		return nil, cdmerrors.New(cdmerrors.ErrorTypeSerialization, "unsupported scalar type").
			WithDetail("type", fmt.Sprintf("%T", v))
	}
}

func checkFloat(f float64) (any, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, cdmerrors.New(cdmerrors.ErrorTypeSerialization, "non-finite number has no JSON form").
			WithDetail("value", formatFloat(f, 64))
	}
	return f, nil
}
