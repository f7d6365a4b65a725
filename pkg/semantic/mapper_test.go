package semantic

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pancaim/cdm/pkg/semantic/dateformat"
)

func sexTable() Table {
	return Table{
		Token("M"): MapToText("male"),
		Token("F"): MapToText("female"),
	}
}

func TestMapperControlledTermRequired(t *testing.T) {
	m := NewMapper(Descriptor{Name: "sex", HasRawCompanion: true}, sexTable(), nil)
	assert.Equal(t, ControlledTermField, m.Kind())

	tests := []struct {
		name  string
		input any
		want  Value
	}{
		{"mapped", "M", Text("male")},
		{"surrounding whitespace is stripped", "  F\t", Text("female")},
		{"case is preserved", "m ", Unmapped},
		{"null never comes out", nil, Unmapped},
		{"blank never comes out", "   ", Unmapped},
		{"nan never comes out", math.NaN(), Unmapped},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, m.Lookup(tt.input))
		})
	}
}

func TestMapperControlledTermRequiredExplicitNull(t *testing.T) {
	table := sexTable()
	table[Token("unknown")] = MapToNull
	m := NewMapper(Descriptor{Name: "sex", HasRawCompanion: true}, table, nil)

	assert.Equal(t, Unmapped, m.Lookup("unknown"))
}

func TestMapperControlledTermNullable(t *testing.T) {
	table := Table{
		Token("yes"):     MapToTerm(Term{Table: "tumor", Field: "metastasis", Value: "present"}),
		Token("no"):      MapToTerm(Term{Table: "tumor", Field: "metastasis", Value: "absent"}),
		Token("unknown"): MapToNull,
	}
	m := NewMapper(Descriptor{Name: "metastasis", Nullable: true, HasRawCompanion: true}, table, nil)

	assert.Equal(t, Text("present"), m.Lookup("yes"))
	assert.Equal(t, Null, m.Lookup("unknown"), "explicit null mapping is kept")
	assert.Equal(t, Null, m.Lookup(nil))
	assert.Equal(t, Null, m.Lookup(""))
	assert.Equal(t, Unmapped, m.Lookup("maybe"))
}

func TestMapperControlledTermNullableAbsenceKey(t *testing.T) {
	table := Table{Absence: MapToText("not recorded")}
	m := NewMapper(Descriptor{Name: "metastasis", Nullable: true, HasRawCompanion: true}, table, nil)

	assert.Equal(t, Text("not recorded"), m.Lookup(nil))
	assert.Equal(t, Text("not recorded"), m.Lookup("  "))
}

func TestMapperPassthrough(t *testing.T) {
	table := Table{
		Token("1950"): MapToInt(1950),
		Token("n/a"):  MapToNull,
	}
	m := NewMapper(Descriptor{Name: "year_of_birth", Nullable: true}, table, nil)
	assert.Equal(t, PassthroughField, m.Kind())

	assert.Equal(t, Int(1950), m.Lookup(1950))
	assert.Equal(t, Int(1950), m.Lookup("1950"))
	assert.Equal(t, Null, m.Lookup("n/a"))
	// Unmapped present values vanish; no pass-through default.
	assert.Equal(t, Null, m.Lookup("1961"))
	assert.Equal(t, Null, m.Lookup(nil))
}

func TestMapperDate(t *testing.T) {
	cascade := dateformat.Cascade{
		dateformat.Pair(dateformat.YMD, dateformat.YM),
		dateformat.Pair(dateformat.Y, "%Y-01"),
	}
	table := Table{
		Token("unknown"): MapToNull,
		Token("spring"):  MapToText("2019-04-01"),
	}

	t.Run("with raw companion", func(t *testing.T) {
		m := NewMapper(Descriptor{Name: "tumor_date", HasRawCompanion: true}, table, cascade)
		assert.Equal(t, DateField, m.Kind())

		assert.Equal(t, Text("2020-05"), m.Lookup("2020-05-14"))
		assert.Equal(t, Text("2020-01"), m.Lookup(" 2020 "))
		assert.Equal(t, Text("2019-04"), m.Lookup("spring"))
		assert.Equal(t, Null, m.Lookup("unknown"))
		assert.Equal(t, Null, m.Lookup(nil))
		assert.Equal(t, Unmapped, m.Lookup("May 2020"))
		for _, s := range []string{"2020-02-30", "2021-02-29", "2020-04-31"} {
			assert.Equal(t, Unmapped, m.Lookup(s), s)
		}
	})

	t.Run("without raw companion", func(t *testing.T) {
		m := NewMapper(Descriptor{Name: "lab_date", Nullable: true}, table, cascade)

		assert.Equal(t, Text("2020-05"), m.Lookup("2020-05-14"))
		assert.Equal(t, Null, m.Lookup("May 2020"))
		for _, s := range []string{"2020-02-30", "2021-02-29", "2020-04-31"} {
			assert.Equal(t, Null, m.Lookup(s), s)
		}
	})
}

func TestMapperDeterministic(t *testing.T) {
	m := NewMapper(Descriptor{Name: "sex", HasRawCompanion: true}, sexTable(), nil)
	for _, in := range []any{"M", "x", nil, " F "} {
		first := m.Lookup(in)
		for i := 0; i < 5; i++ {
			assert.Equal(t, first, m.Lookup(in))
		}
	}
}

func TestUnmappedIsDistinguished(t *testing.T) {
	m := NewMapper(Descriptor{Name: "sex", HasRawCompanion: true}, Table{Token("UNMAPPED"): MapToText("UNMAPPED")}, nil)

	got := m.Lookup("UNMAPPED")
	assert.Equal(t, KindString, got.Kind())
	assert.NotEqual(t, Unmapped, got)
	assert.Equal(t, UnmappedText, Unmapped.Interface())
}

func TestClassify(t *testing.T) {
	tests := []struct {
		d    Descriptor
		want FieldKind
	}{
		{Descriptor{Name: "tumor_date"}, DateField},
		{Descriptor{Name: "lab2_date", HasRawCompanion: true}, DateField},
		{Descriptor{Name: "date_of_surgery", HasRawCompanion: true}, ControlledTermField},
		{Descriptor{Name: "grade", HasRawCompanion: true}, ControlledTermField},
		{Descriptor{Name: "weight"}, PassthroughField},
	}
	for _, tt := range tests {
		t.Run(tt.d.Name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.d))
		})
	}
}

func TestDescribeColumn(t *testing.T) {
	cols := []string{"id", "grade", "grade_raw_value", "weight"}

	assert.Equal(t, Descriptor{Name: "grade", HasRawCompanion: true}, DescribeColumn("grade", false, cols))
	assert.Equal(t, Descriptor{Name: "weight", Nullable: true}, DescribeColumn("weight", true, cols))
	assert.True(t, IsRawCompanion("grade_raw_value"))
	assert.False(t, IsRawCompanion("grade"))
}
