// Package dictionary holds the field and enumerated-type dictionaries a
// session downloads or serves, and the resumable cursor used to split a
// dictionary across several refresh messages.
package dictionary

import (
	"errors"
	"fmt"
	"sort"

	"github.com/danmuck/rdmsession/internal/protocol/schema"
	"github.com/danmuck/rdmsession/internal/protocol/tlv"
)

// Type is the dictionary type carried in the first refresh part.
type Type uint8

const (
	TypeFieldDefinitions Type = 1
	TypeEnumTables       Type = 2
)

func (t Type) String() string {
	switch t {
	case TypeFieldDefinitions:
		return "field"
	case TypeEnumTables:
		return "enum"
	default:
		return fmt.Sprintf("type(%d)", uint8(t))
	}
}

// Well-known dictionary names.
const (
	FieldDictionaryName = "RWFFld"
	EnumDictionaryName  = "RWFEnum"
)

// Field type identifiers carried in a field definition.
const (
	FieldTypeInt      uint8 = 3
	FieldTypeUint     uint8 = 4
	FieldTypeReal     uint8 = 8
	FieldTypeDate     uint8 = 9
	FieldTypeTime     uint8 = 10
	FieldTypeEnum     uint8 = 14
	FieldTypeAsciiStr uint8 = 17
	FieldTypeRMTESStr uint8 = 19
)

var (
	ErrDuplicateField = errors.New("dictionary: duplicate field id")
	ErrUnknownName    = errors.New("dictionary: unknown dictionary name")
)

type FieldDef struct {
	FID        int16
	Acronym    string
	DDEAcronym string
	RipplesTo  int16
	Type       uint8
	Length     uint16
	EnumLength uint8
}

type EnumValue struct {
	Code    uint16
	Display string
}

// EnumTable is shared by every field id listed in FIDs.
type EnumTable struct {
	FIDs   []int16
	Values []EnumValue
}

type Info struct {
	DictionaryID int32
	FieldVersion string
	EnumVersion  string
}

// Dictionary is owned by one session; it is not safe for concurrent use.
type Dictionary struct {
	Info Info

	fields    map[int16]FieldDef
	order     []int16
	enums     []EnumTable
	enumByFID map[int16]int
}

func New() *Dictionary {
	return &Dictionary{
		fields:    make(map[int16]FieldDef),
		enumByFID: make(map[int16]int),
	}
}

// ClearFields drops every field definition.
func (d *Dictionary) ClearFields() {
	d.fields = make(map[int16]FieldDef)
	d.order = nil
}

// ClearEnums drops every enum table.
func (d *Dictionary) ClearEnums() {
	d.enums = nil
	d.enumByFID = make(map[int16]int)
}

func (d *Dictionary) Clear() {
	d.ClearFields()
	d.ClearEnums()
	d.Info = Info{}
}

func (d *Dictionary) AddField(def FieldDef) error {
	if _, ok := d.fields[def.FID]; ok {
		return fmt.Errorf("%w: %d", ErrDuplicateField, def.FID)
	}
	d.fields[def.FID] = def
	i := sort.Search(len(d.order), func(i int) bool { return d.order[i] >= def.FID })
	d.order = append(d.order, 0)
	copy(d.order[i+1:], d.order[i:])
	d.order[i] = def.FID
	return nil
}

func (d *Dictionary) AddEnumTable(table EnumTable) {
	d.enums = append(d.enums, table)
	idx := len(d.enums) - 1
	for _, fid := range table.FIDs {
		d.enumByFID[fid] = idx
	}
}

func (d *Dictionary) Field(fid int16) (FieldDef, bool) {
	def, ok := d.fields[fid]
	return def, ok
}

// FieldByAcronym is a linear scan.
func (d *Dictionary) FieldByAcronym(acronym string) (FieldDef, bool) {
	for _, fid := range d.order {
		if def := d.fields[fid]; def.Acronym == acronym {
			return def, true
		}
	}
	return FieldDef{}, false
}

// Fields returns definitions ordered by field id.
func (d *Dictionary) Fields() []FieldDef {
	out := make([]FieldDef, 0, len(d.order))
	for _, fid := range d.order {
		out = append(out, d.fields[fid])
	}
	return out
}

func (d *Dictionary) EnumTables() []EnumTable {
	out := make([]EnumTable, len(d.enums))
	copy(out, d.enums)
	return out
}

func (d *Dictionary) EnumDisplay(fid int16, code uint16) (string, bool) {
	idx, ok := d.enumByFID[fid]
	if !ok {
		return "", false
	}
	for _, v := range d.enums[idx].Values {
		if v.Code == code {
			return v.Display, true
		}
	}
	return "", false
}

func (d *Dictionary) NumFields() int     { return len(d.order) }
func (d *Dictionary) NumEnumTables() int { return len(d.enums) }

// TypeForName maps a requested dictionary name to its type.
func TypeForName(name string) (Type, error) {
	switch name {
	case FieldDictionaryName:
		return TypeFieldDefinitions, nil
	case EnumDictionaryName:
		return TypeEnumTables, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownName, name)
	}
}

func EncodeFieldDef(def FieldDef) tlv.Field {
	fields := []tlv.Field{
		tlv.I32(schema.FieldFID, int32(def.FID)),
		tlv.String(schema.FieldAcronym, def.Acronym),
		tlv.U8(schema.FieldFieldType, def.Type),
	}
	if def.DDEAcronym != "" {
		fields = append(fields, tlv.String(schema.FieldDDEAcronym, def.DDEAcronym))
	}
	if def.RipplesTo != 0 {
		fields = append(fields, tlv.I32(schema.FieldRipplesTo, int32(def.RipplesTo)))
	}
	if def.Length != 0 {
		fields = append(fields, tlv.U16(schema.FieldLength, def.Length))
	}
	if def.EnumLength != 0 {
		fields = append(fields, tlv.U8(schema.FieldEnumLength, def.EnumLength))
	}
	return tlv.Group(schema.FieldFieldDef, fields)
}

func DecodeFieldDef(f tlv.Field) (FieldDef, error) {
	fields, err := f.AsGroup()
	if err != nil {
		return FieldDef{}, err
	}
	if err := schema.Validate(schema.MsgFieldDef, fields); err != nil {
		return FieldDef{}, err
	}
	var def FieldDef
	for _, field := range fields {
		switch field.ID {
		case schema.FieldFID:
			v, err := field.AsI32()
			if err != nil {
				return FieldDef{}, err
			}
			def.FID = int16(v)
		case schema.FieldAcronym:
			def.Acronym, _ = field.AsString()
		case schema.FieldDDEAcronym:
			def.DDEAcronym, err = field.AsString()
		case schema.FieldRipplesTo:
			var v int32
			v, err = field.AsI32()
			def.RipplesTo = int16(v)
		case schema.FieldFieldType:
			def.Type, _ = field.AsU8()
		case schema.FieldLength:
			def.Length, err = field.AsU16()
		case schema.FieldEnumLength:
			def.EnumLength, err = field.AsU8()
		}
		if err != nil {
			return FieldDef{}, err
		}
	}
	return def, nil
}

func EncodeEnumTable(table EnumTable) tlv.Field {
	fields := make([]tlv.Field, 0, len(table.FIDs)+len(table.Values))
	for _, fid := range table.FIDs {
		fields = append(fields, tlv.I32(schema.FieldFID, int32(fid)))
	}
	for _, v := range table.Values {
		fields = append(fields, tlv.Group(schema.FieldEnumValue, []tlv.Field{
			tlv.U16(schema.FieldEnumCode, v.Code),
			tlv.String(schema.FieldEnumDisplay, v.Display),
		}))
	}
	return tlv.Group(schema.FieldEnumTable, fields)
}

func DecodeEnumTable(f tlv.Field) (EnumTable, error) {
	fields, err := f.AsGroup()
	if err != nil {
		return EnumTable{}, err
	}
	if err := schema.Validate(schema.MsgEnumTable, fields); err != nil {
		return EnumTable{}, err
	}
	var table EnumTable
	for _, field := range fields {
		switch field.ID {
		case schema.FieldFID:
			v, err := field.AsI32()
			if err != nil {
				return EnumTable{}, err
			}
			table.FIDs = append(table.FIDs, int16(v))
		case schema.FieldEnumValue:
			inner, err := field.AsGroup()
			if err != nil {
				return EnumTable{}, err
			}
			if err := schema.Validate(schema.MsgEnumValue, inner); err != nil {
				return EnumTable{}, err
			}
			code, _ := tlv.GetField(inner, schema.FieldEnumCode)
			display, _ := tlv.GetField(inner, schema.FieldEnumDisplay)
			var v EnumValue
			v.Code, _ = code.AsU16()
			v.Display, _ = display.AsString()
			table.Values = append(table.Values, v)
		}
	}
	return table, nil
}
