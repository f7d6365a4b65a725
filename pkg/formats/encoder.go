package formats

import (
	"io"
	"sort"

	"github.com/pancaim/cdm/pkg/cdmerrors"
)

// Encoder writes one document to w.
type Encoder interface {
	// Name is the format name used in configuration.
	Name() string
	// Extension is the file extension of artifacts, including the dot.
	Extension() string
	Encode(w io.Writer, doc any) error
}

var encoders = map[string]func() Encoder{
	"hier": func() Encoder { return NewHierEncoder() },
	"json": func() Encoder { return NewJSONEncoder() },
}

// DefaultFormat is the format used when none is configured.
const DefaultFormat = "hier"

// NewEncoder returns the encoder for a format name. An empty name selects
// DefaultFormat.
func NewEncoder(name string) (Encoder, error) {
	if name == "" {
		name = DefaultFormat
	}
	factory, ok := encoders[name]
	if !ok {
		return nil, cdmerrors.New(cdmerrors.ErrorTypeConfig, "unknown output format").
			WithDetail("format", name)
	}
	return factory(), nil
}

// Names lists the supported format names.
func Names() []string {
	names := make([]string, 0, len(encoders))
	for name := range encoders {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
