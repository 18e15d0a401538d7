package dictionary

import "github.com/danmuck/rdmsession/internal/protocol/tlv"

// Cursor tracks how much of a dictionary has been encoded so far. The
// dictionary must not change while a cursor over it is in use.
type Cursor struct {
	next  int
	total int
	parts int
}

// Done reports whether every entry has been handed out.
func (c *Cursor) Done() bool {
	return c.parts > 0 && c.next >= c.total
}

// Remaining is the number of entries not yet encoded.
func (c *Cursor) Remaining() int {
	if c.next >= c.total {
		return 0
	}
	return c.total - c.next
}

// First reports whether no part has been produced yet.
func (c *Cursor) First() bool { return c.parts == 0 }

// Parts is the number of parts produced so far.
func (c *Cursor) Parts() int { return c.parts }

// FieldPart returns the next run of field definitions whose encoded size
// fits budget bytes, plus how many definitions remain after it. At least
// one definition is returned whenever any remain so a transfer always
// progresses.
func (d *Dictionary) FieldPart(c *Cursor, budget int) ([]FieldDef, int) {
	c.total = len(d.order)
	var (
		out  []FieldDef
		used int
	)
	for c.next < c.total {
		def := d.fields[d.order[c.next]]
		size := tlv.EncodedLen(EncodeFieldDef(def))
		if len(out) > 0 && used+size > budget {
			break
		}
		out = append(out, def)
		used += size
		c.next++
	}
	c.parts++
	return out, c.Remaining()
}

// EnumPart is FieldPart for enum tables.
func (d *Dictionary) EnumPart(c *Cursor, budget int) ([]EnumTable, int) {
	c.total = len(d.enums)
	var (
		out  []EnumTable
		used int
	)
	for c.next < c.total {
		table := d.enums[c.next]
		size := tlv.EncodedLen(EncodeEnumTable(table))
		if len(out) > 0 && used+size > budget {
			break
		}
		out = append(out, table)
		used += size
		c.next++
	}
	c.parts++
	return out, c.Remaining()
}
