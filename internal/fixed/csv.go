package fixed

import (
	"fmt"
	"io"
	"strconv"
)

// CellKind tags the variant stored in a Cell.
type CellKind int

const (
	CellEmpty CellKind = iota
	CellString
	CellInt
	CellFloat
	CellBool
	CellPointer
)

// Cell is a tagged union over the value types a CSV column can hold.
// Stringification follows spec: integers print as decimal, floats as
// "%f", pointers as "0x%X", booleans as "true"/"false", and an empty cell
// prints as "".
type Cell struct {
	kind CellKind
	s    string
	i    int64
	f    float64
	b    bool
	ptr  uint64
}

func StringCell(s string) Cell   { return Cell{kind: CellString, s: s} }
func IntCell(i int64) Cell       { return Cell{kind: CellInt, i: i} }
func FloatCell(f float64) Cell   { return Cell{kind: CellFloat, f: f} }
func BoolCell(b bool) Cell       { return Cell{kind: CellBool, b: b} }
func PointerCell(p uint64) Cell  { return Cell{kind: CellPointer, ptr: p} }
func EmptyCell() Cell            { return Cell{kind: CellEmpty} }

// String renders the cell per the stringification rules in spec.md §4.A.
func (c Cell) String() string {
	switch c.kind {
	case CellString:
		return c.s
	case CellInt:
		return strconv.FormatInt(c.i, 10)
	case CellFloat:
		return fmt.Sprintf("%f", c.f)
	case CellBool:
		if c.b {
			return "true"
		}
		return "false"
	case CellPointer:
		return fmt.Sprintf("0x%X", c.ptr)
	default:
		return ""
	}
}

// Row is a mapping from column name to Cell, addressed through the owning
// Table's title row so a row never needs to know its own column order.
type Row struct {
	cells []Cell
}

// Set stores value in the column named column, looked up against title.
// If column is not present in title, Set is a silent no-op — a test asking
// for a column it never declared in its title row is a programming error
// that should surface in review, not corrupt a row at runtime.
func (r *Row) Set(title *Title, column string, value Cell) {
	idx, ok := title.index[column]
	if !ok {
		return
	}
	for len(r.cells) <= idx {
		r.cells = append(r.cells, EmptyCell())
	}
	r.cells[idx] = value
}

func (r *Row) cellsPadded(n int) []Cell {
	if len(r.cells) >= n {
		return r.cells
	}
	padded := make([]Cell, n)
	copy(padded, r.cells)
	for i := len(r.cells); i < n; i++ {
		padded[i] = EmptyCell()
	}
	return padded
}

// Title is the ordered set of column names for a Table, built once at
// test setup and shared by every Row the test emits.
type Title struct {
	columns []string
	index   map[string]int
}

// NewTitle builds a Title from an ordered column list.
func NewTitle(columns ...string) *Title {
	t := &Title{columns: append([]string(nil), columns...), index: make(map[string]int, len(columns))}
	for i, c := range columns {
		t.index[c] = i
	}
	return t
}

// Table is a title row plus a bounded buffer of data rows. Write emits the
// title exactly once per output file (tracked per-sink, so appending to an
// already-titled file never repeats the header) followed by the buffered
// rows, then clears the buffer.
type Table struct {
	title       *Title
	rows        *Vector[*Row]
	titled      map[string]bool
}

// NewTable constructs a Table with the given title and a row buffer
// bounded to capacity rows.
func NewTable(title *Title, capacity int) *Table {
	return &Table{
		title:  title,
		rows:   NewVector[*Row](capacity),
		titled: make(map[string]bool),
	}
}

// Title returns the table's title row, for use with Row.Set.
func (t *Table) Title() *Title { return t.title }

// NewRow allocates a blank row sized to the title. Use Row.Set to populate
// it, then Append to buffer it for the next Write.
func (t *Table) NewRow() *Row {
	return &Row{cells: make([]Cell, len(t.title.columns))}
}

// Append buffers row, returning false (and not buffering) if the table is
// already full. Tests should check Full and Write proactively rather than
// rely on Append's return alone, since a dropped row is a silent loss of
// data.
func (t *Table) Append(row *Row) bool {
	return t.rows.Push(row)
}

// Full reports whether the row buffer has reached capacity.
func (t *Table) Full() bool { return t.rows.Full() }

// Write emits the buffered rows as comma-separated ASCII text to sink,
// identified by sinkName so repeated appends to the same logical file
// suppress the duplicate title row. The row buffer is cleared afterward
// regardless of any write error, since the alternative — retrying forever
// — risks growing the buffer past its bound on a persistently broken sink.
func (t *Table) Write(sinkName string, sink io.Writer) error {
	defer t.rows.Clear()

	var err error
	if !t.titled[sinkName] {
		if _, werr := io.WriteString(sink, joinCSV(t.title.columns)+"\n"); werr != nil {
			return werr
		}
		t.titled[sinkName] = true
	}
	t.rows.Each(func(_ int, row *Row) {
		if err != nil {
			return
		}
		cells := row.cellsPadded(len(t.title.columns))
		fields := make([]string, len(cells))
		for i, c := range cells {
			fields[i] = c.String()
		}
		_, werr := io.WriteString(sink, joinCSV(fields)+"\n")
		if werr != nil {
			err = werr
		}
	})
	return err
}

func joinCSV(fields []string) string {
	out := ""
	for i, f := range fields {
		if i > 0 {
			out += ","
		}
		out += f
	}
	return out
}
