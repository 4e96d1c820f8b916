package spreadsheet

import "strings"

// Table is one sheet: a header row and the data rows below it. Row numbers
// reported to users are 1-based and count the header, as a spreadsheet does.
type Table struct {
	Name      string
	Headers   []string
	Rows      [][]string
	index     map[string]int
	headerRow int
}

// NewTable builds a table from raw rows, the first being the header.
// Leading blank rows are skipped.
func NewTable(name string, rows [][]string) (*Table, error) {
	skipped := 0
	for len(rows) > 0 && blank(rows[0]) {
		rows = rows[1:]
		skipped++
	}
	if len(rows) == 0 {
		return nil, ErrMissingHeader
	}

	t := &Table{
		Name:      name,
		Headers:   make([]string, len(rows[0])),
		Rows:      rows[1:],
		index:     make(map[string]int, len(rows[0])),
		headerRow: skipped + 1,
	}
	for i, h := range rows[0] {
		h = strings.TrimSpace(h)
		t.Headers[i] = h
		key := headerKey(h)
		if _, dup := t.index[key]; !dup && key != "" {
			t.index[key] = i
		}
	}
	return t, nil
}

// Column returns the index of the first header matching any of names,
// compared case-insensitively after trimming.
func (t *Table) Column(names ...string) (int, bool) {
	for _, n := range names {
		if i, ok := t.index[headerKey(n)]; ok {
			return i, true
		}
	}
	return -1, false
}

// RowNumber is the spreadsheet row number of data row i.
func (t *Table) RowNumber(i int) int {
	return t.headerRow + i + 1
}

// Cell returns the trimmed value at column col of row, or "" when the row is
// short or col is negative.
func Cell(row []string, col int) string {
	if col < 0 || col >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[col])
}

func headerKey(h string) string {
	return strings.Join(strings.Fields(strings.ToLower(h)), " ")
}

func blank(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
