package dictionary

import (
	"errors"
	"testing"

	"github.com/danmuck/rdmsession/internal/protocol/tlv"
	"github.com/stretchr/testify/require"
)

func TestAddFieldKeepsOrderAndRejectsDuplicates(t *testing.T) {
	d := New()
	require.NoError(t, d.AddField(FieldDef{FID: 22, Acronym: "BID", Type: FieldTypeReal}))
	require.NoError(t, d.AddField(FieldDef{FID: 6, Acronym: "TRDPRC_1", Type: FieldTypeReal}))
	require.NoError(t, d.AddField(FieldDef{FID: -4, Acronym: "NEG", Type: FieldTypeInt}))

	err := d.AddField(FieldDef{FID: 6, Acronym: "DUP"})
	require.True(t, errors.Is(err, ErrDuplicateField))

	fields := d.Fields()
	require.Len(t, fields, 3)
	require.Equal(t, []int16{-4, 6, 22}, []int16{fields[0].FID, fields[1].FID, fields[2].FID})

	def, ok := d.FieldByAcronym("BID")
	require.True(t, ok)
	require.Equal(t, int16(22), def.FID)
}

func TestFieldDefAndEnumTableRoundTrip(t *testing.T) {
	def := FieldDef{FID: 6, Acronym: "TRDPRC_1", DDEAcronym: "LAST", RipplesTo: 7, Type: FieldTypeReal, Length: 17}
	got, err := DecodeFieldDef(EncodeFieldDef(def))
	require.NoError(t, err)
	require.Equal(t, def, got)

	table := EnumTable{FIDs: []int16{4, 5}, Values: []EnumValue{{Code: 1, Display: "ASE"}}}
	gotTable, err := DecodeEnumTable(EncodeEnumTable(table))
	require.NoError(t, err)
	require.Equal(t, table, gotTable)

	_, err = DecodeFieldDef(tlv.Group(1, []tlv.Field{tlv.I32(211, 1)}))
	require.Error(t, err)
}

func TestEnumDisplay(t *testing.T) {
	d := Builtin()
	got, ok := d.EnumDisplay(15, 840)
	require.True(t, ok)
	require.Equal(t, "USD", got)
	_, ok = d.EnumDisplay(22, 1)
	require.False(t, ok)
}

func TestCursorSplitsIntoBudgetedParts(t *testing.T) {
	d := Builtin()
	var (
		c     Cursor
		seen  []FieldDef
		parts int
	)
	require.True(t, c.First())
	for !c.Done() {
		part, remaining := d.FieldPart(&c, 256)
		require.NotEmpty(t, part)
		seen = append(seen, part...)
		require.Equal(t, d.NumFields()-len(seen), remaining)
		parts++
	}
	require.Greater(t, parts, 1)
	require.Equal(t, parts, c.Parts())
	require.Equal(t, d.Fields(), seen)
}

func TestCursorAlwaysProgressesWithTinyBudget(t *testing.T) {
	d := Builtin()
	var c Cursor
	part, remaining := d.EnumPart(&c, 1)
	require.Len(t, part, 1)
	require.Equal(t, d.NumEnumTables()-1, remaining)
}

func TestCursorOnEmptyDictionaryCompletesInOnePart(t *testing.T) {
	d := New()
	var c Cursor
	part, remaining := d.FieldPart(&c, 1024)
	require.Empty(t, part)
	require.Zero(t, remaining)
	require.True(t, c.Done())
}

func TestTypeForName(t *testing.T) {
	typ, err := TypeForName(FieldDictionaryName)
	require.NoError(t, err)
	require.Equal(t, TypeFieldDefinitions, typ)
	_, err = TypeForName("RWFBogus")
	require.ErrorIs(t, err, ErrUnknownName)
}
