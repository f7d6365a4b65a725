package formats

import (
	"errors"
	"io"
	"strings"

	"github.com/pancaim/cdm/pkg/cdmerrors"
)

// DefaultIndent is the indent width of HierEncoder.
const DefaultIndent = 4

// HierEncoder writes the hierarchical report format:
//
//	person
//	    - item 0
//	        - pancaim_id = 17
//	        - sex = female
//	surgery
//
// Top-level keys carry no prefix. Deeper keys are prefixed with
// level*Indent spaces and "- ". A scalar renders as "key = value", an empty
// mapping as the bare key and a non-empty mapping as the key followed by
// its entries one level deeper. Keys are not quoted and the output cannot
// be parsed back.
type HierEncoder struct {
	Indent int
}

// NewHierEncoder returns a HierEncoder with DefaultIndent.
func NewHierEncoder() *HierEncoder {
	return &HierEncoder{Indent: DefaultIndent}
}

// Name implements Encoder.
func (e *HierEncoder) Name() string { return "hier" }

// Extension implements Encoder.
func (e *HierEncoder) Extension() string { return ".json" }

// Encode implements Encoder.
func (e *HierEncoder) Encode(w io.Writer, doc any) error {
	out, err := e.Render(doc)
	if err != nil {
		return err
	}
	if _, err := io.WriteString(w, out); err != nil {
		return cdmerrors.Wrap(err, cdmerrors.ErrorTypeFile, "failed to write document")
	}
	return nil
}

// Render returns doc in hierarchical form. An empty document renders as "".
func (e *HierEncoder) Render(doc any) (string, error) {
	keys, get, ok := mapping(doc)
	if !ok {
		return "", cdmerrors.New(cdmerrors.ErrorTypeSerialization, "document root must be a mapping")
	}
	var b strings.Builder
	if err := e.writeMapping(&b, keys, get, 0); err != nil {
		return "", err
	}
	return b.String(), nil
}

func (e *HierEncoder) writeMapping(b *strings.Builder, keys []string, get func(string) any, level int) error {
	prefix := e.prefix(level)
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(prefix)
		b.WriteString(k)

		v := get(k)
		if childKeys, childGet, ok := mapping(v); ok {
			if len(childKeys) == 0 {
				continue
			}
			b.WriteByte('\n')
			if err := e.writeMapping(b, childKeys, childGet, level+1); err != nil {
				return err
			}
			continue
		}

		s, err := FormatScalar(v)
		if err != nil {
			var ce *cdmerrors.Error
			if errors.As(err, &ce) {
				return ce.WithDetail("key", k)
			}
			return err
		}
		b.WriteString(" = ")
		b.WriteString(s)
	}
	return nil
}

func (e *HierEncoder) prefix(level int) string {
	if level == 0 {
		return ""
	}
	indent := e.Indent
	if indent <= 0 {
		indent = DefaultIndent
	}
	return strings.Repeat(" ", level*indent) + "- "
}
