// Package report parses the delimited text payloads returned by the Direct
// Reports service and by Metrica Logs API downloads into column-addressed
// tables.
package report

import (
	"fmt"
	"strconv"
	"strings"
)

// Table is a parsed delimited report. Every row holds exactly one cell per
// column, in column order.
type Table struct {
	Columns []string
	Rows    [][]string
}

// Options control parsing. The zero value autodetects the delimiter, derives
// columns from the header line and applies no row cap.
type Options struct {
	// Delimiter overrides autodetection when non-empty.
	Delimiter string
	// Columns, when non-empty, are used instead of header detection. Rows
	// whose cell count differs from the column count are dropped.
	Columns []string
	// MaxRows caps the number of parsed rows when positive.
	MaxRows int
}

// totalPrefixes mark summary rows appended by the providers. Matching rows
// are dropped so they never pollute aggregation.
var totalPrefixes = []string{"total", "итого", "всего"}

// GuessDelimiter picks the most likely delimiter for raw. Tab wins over
// semicolon wins over comma, matching the formats Direct and Metrica emit.
func GuessDelimiter(raw string) string {
	if strings.Contains(raw, "\t") {
		return "\t"
	}
	if strings.Contains(raw, ";") {
		return ";"
	}
	return ","
}

// Parse splits raw into a Table. Blank lines and provider summary rows are
// skipped. Without explicit columns the first line is treated as a header
// when it has at least two cells and none of them look numeric; otherwise
// synthetic col_N names are assigned from the first data row.
func Parse(raw string, opts Options) Table {
	delimiter := opts.Delimiter
	if delimiter == "" {
		delimiter = GuessDelimiter(raw)
	}

	lines := splitLines(raw)
	columns := append([]string(nil), opts.Columns...)
	if len(lines) == 0 {
		return Table{Columns: columns}
	}

	if len(columns) == 0 {
		header := splitCells(lines[0], delimiter, true)
		if isHeader(header) {
			columns = header
			lines = lines[1:]
		}
	}

	var rows [][]string
	for _, line := range lines {
		if isTotalRow(line) {
			continue
		}
		cells := splitCells(line, delimiter, false)
		if len(columns) > 0 && len(cells) != len(columns) {
			continue
		}
		if len(columns) == 0 {
			columns = syntheticColumns(len(cells))
		}
		rows = append(rows, cells)
		if opts.MaxRows > 0 && len(rows) >= opts.MaxRows {
			break
		}
	}

	return Table{Columns: columns, Rows: rows}
}

// Records converts the table into one map per row, keyed by column name.
func (t Table) Records() []map[string]string {
	records := make([]map[string]string, 0, len(t.Rows))
	for _, row := range t.Rows {
		record := make(map[string]string, len(t.Columns))
		for i, col := range t.Columns {
			if i < len(row) {
				record[col] = row[i]
			}
		}
		records = append(records, record)
	}
	return records
}

// Column returns the index of name in the column list, or -1.
func (t Table) Column(name string) int {
	for i, col := range t.Columns {
		if col == name {
			return i
		}
	}
	return -1
}

// Float parses a report cell as a number. Provider reports may carry
// NBSP or space group separators and a comma decimal point; both forms
// are accepted. Empty cells report ok=false.
func Float(cell string) (float64, bool) {
	s := strings.TrimSpace(cell)
	if s == "" {
		return 0, false
	}
	s = strings.NewReplacer(" ", "", " ", "", " ", "").Replace(s)
	if strings.Contains(s, ",") && !strings.Contains(s, ".") {
		s = strings.ReplaceAll(s, ",", ".")
	} else {
		s = strings.ReplaceAll(s, ",", "")
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// Int parses a report cell as an integer, accepting the same separator
// forms as Float and truncating any fractional part.
func Int(cell string) (int64, bool) {
	v, ok := Float(cell)
	if !ok {
		return 0, false
	}
	return int64(v), true
}

func splitLines(raw string) []string {
	raw = strings.ReplaceAll(raw, "\r\n", "\n")
	raw = strings.ReplaceAll(raw, "\r", "\n")

	var lines []string
	for _, line := range strings.Split(raw, "\n") {
		if strings.TrimSpace(line) != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

func splitCells(line, delimiter string, trim bool) []string {
	cells := strings.Split(line, delimiter)
	if trim {
		for i := range cells {
			cells[i] = strings.TrimSpace(cells[i])
		}
	}
	return cells
}

// isHeader reports whether cells look like column names rather than data.
// A lone cell or any numeric-looking cell disqualifies the line.
func isHeader(cells []string) bool {
	if len(cells) < 2 {
		return false
	}
	for _, cell := range cells {
		if cell == "" || looksNumeric(cell) {
			return false
		}
	}
	return true
}

// looksNumeric reports whether the cell is digits once dots and
// underscores are removed.
func looksNumeric(cell string) bool {
	stripped := strings.NewReplacer(".", "", "_", "").Replace(cell)
	if stripped == "" {
		return false
	}
	for _, r := range stripped {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func isTotalRow(line string) bool {
	lower := strings.ToLower(line)
	for _, prefix := range totalPrefixes {
		if strings.HasPrefix(lower, prefix) {
			return true
		}
	}
	return false
}

func syntheticColumns(n int) []string {
	columns := make([]string, n)
	for i := range columns {
		columns[i] = fmt.Sprintf("col_%d", i)
	}
	return columns
}
