package formats

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pancaim/cdm/pkg/cdmerrors"
)

func TestHierEncoderRender(t *testing.T) {
	enc := NewHierEncoder()

	tests := []struct {
		name string
		doc  any
		want string
	}{
		{
			name: "empty document",
			doc:  NewMap(0),
			want: "",
		},
		{
			name: "empty table is a bare key",
			doc:  NewMap(1).Set("Surgery", NewMap(0)),
			want: "Surgery",
		},
		{
			name: "empty plain map is a bare key",
			doc:  map[string]any{"Surgery": map[string]any{}},
			want: "Surgery",
		},
		{
			name: "top level scalar has no prefix",
			doc:  NewMap(1).Set("version", 2),
			want: "version = 2",
		},
		{
			name: "nested items",
			doc: NewMap(2).
				Set("person", NewMap(1).Set("item 0", NewMap(3).
					Set("pancaim_id", int64(17)).
					Set("sex", "female").
					Set("date_of_interview", time.Date(2021, 3, 4, 0, 0, 0, 0, time.UTC)))).
				Set("surgery", NewMap(0)),
			want: strings.Join([]string{
				"person",
				"    - item 0",
				"        - pancaim_id = 17",
				"        - sex = female",
				"        - date_of_interview = 2021-03-04",
				"surgery",
			}, "\n"),
		},
		{
			name: "null and boolean scalars",
			doc:  NewMap(1).Set("lab", NewMap(2).Set("value", nil).Set("fasting", true)),
			want: "lab\n    - value = null\n    - fasting = true",
		},
		{
			name: "plain maps render sorted",
			doc:  map[string]any{"b": 1.5, "a": "x"},
			want: "a = x\nb = 1.5",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := enc.Render(tt.doc)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestHierEncoderCustomIndent(t *testing.T) {
	enc := &HierEncoder{Indent: 2}
	got, err := enc.Render(NewMap(1).Set("a", NewMap(1).Set("b", NewMap(1).Set("c", 1))))
	require.NoError(t, err)
	assert.Equal(t, "a\n  - b\n    - c = 1", got)
}

func TestHierEncoderNestedBlocksAreDeeper(t *testing.T) {
	doc := NewMap(1).Set("tumor", NewMap(2).
		Set("item 0", NewMap(1).Set("grade", "G2")).
		Set("item 1", NewMap(0)))

	got, err := NewHierEncoder().Render(doc)
	require.NoError(t, err)

	lines := strings.Split(got, "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "tumor", lines[0])
	assert.Equal(t, "    - item 0", lines[1])
	assert.Equal(t, "        - grade = G2", lines[2])
	assert.Equal(t, "    - item 1", lines[3])
}

func TestHierEncoderErrors(t *testing.T) {
	enc := NewHierEncoder()

	_, err := enc.Render("scalar")
	require.Error(t, err)
	assert.True(t, cdmerrors.IsType(err, cdmerrors.ErrorTypeSerialization))

	_, err = enc.Render(NewMap(1).Set("lab", NewMap(1).Set("values", []int{1, 2})))
	require.Error(t, err)
	assert.True(t, cdmerrors.IsType(err, cdmerrors.ErrorTypeSerialization))
	assert.Contains(t, err.Error(), "key=values")
}

func TestHierEncoderEncode(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewHierEncoder().Encode(&buf, NewMap(1).Set("Surgery", NewMap(0))))
	assert.Equal(t, "Surgery", buf.String())
}

func TestMapOrder(t *testing.T) {
	m := NewMap(0).Set("z", 1).Set("a", 2).Set("z", 3)

	assert.Equal(t, []string{"z", "a"}, m.Keys())
	v, ok := m.Get("z")
	assert.True(t, ok)
	assert.Equal(t, 3, v)
	assert.Equal(t, 2, m.Len())

	var nilMap *Map
	assert.Equal(t, 0, nilMap.Len())
	_, ok = nilMap.Get("z")
	assert.False(t, ok)
}
