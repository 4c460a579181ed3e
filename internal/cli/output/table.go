package output

import (
	"io"

	"github.com/olekukonko/tablewriter"
)

// TableRenderer is implemented by results that render as a table.
type TableRenderer interface {
	Headers() []string
	Rows() [][]string
}

// RightAligned is optionally implemented by a TableRenderer whose numeric
// columns should be right aligned.
type RightAligned interface {
	RightAligned() []int
}

// PrintTable writes data as a borderless table.
func PrintTable(w io.Writer, data TableRenderer) error {
	table := newTable(w)
	table.SetHeader(data.Headers())
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderLine(false)

	if ra, ok := data.(RightAligned); ok {
		align := make([]int, len(data.Headers()))
		for i := range align {
			align[i] = tablewriter.ALIGN_LEFT
		}
		for _, col := range ra.RightAligned() {
			if col >= 0 && col < len(align) {
				align[col] = tablewriter.ALIGN_RIGHT
			}
		}
		table.SetColumnAlignment(align)
	}

	table.AppendBulk(data.Rows())
	table.Render()
	return nil
}

// SimpleTable prints "key: value" lines aligned on the colon.
func SimpleTable(w io.Writer, pairs [][2]string) error {
	table := newTable(w)
	table.SetAutoFormatHeaders(false)
	table.SetColumnSeparator(":")
	for _, pair := range pairs {
		table.Append([]string{pair[0], pair[1]})
	}
	table.Render()
	return nil
}

func newTable(w io.Writer) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetAutoWrapText(false)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetBorder(false)
	table.SetTablePadding("  ")
	table.SetNoWhiteSpace(true)
	return table
}

// TableData is an ad-hoc TableRenderer.
type TableData struct {
	headers []string
	rows    [][]string
	right   []int
}

// NewTableData creates a table with the given headers.
func NewTableData(headers ...string) *TableData {
	return &TableData{headers: headers}
}

// AddRow appends a row.
func (t *TableData) AddRow(row ...string) {
	t.rows = append(t.rows, row)
}

// AlignRight right aligns the given columns.
func (t *TableData) AlignRight(cols ...int) *TableData {
	t.right = append(t.right, cols...)
	return t
}

func (t *TableData) Headers() []string   { return t.headers }
func (t *TableData) Rows() [][]string    { return t.rows }
func (t *TableData) RightAligned() []int { return t.right }
