package dataset

import (
	"math"
	"strconv"
	"strings"
)

// Column kinds reported by DataTypes.
const (
	TypeInt    = "int64"
	TypeFloat  = "float64"
	TypeObject = "object"
)

// MissingValues counts null cells per column.
func (f *Frame) MissingValues() map[string]int {
	out := make(map[string]int, len(f.Headers))
	for col, name := range f.Headers {
		n := 0
		for row := range f.Rows {
			if IsMissing(f.Cell(row, col)) {
				n++
			}
		}
		out[name] = n
	}
	return out
}

// DataTypes infers a kind per column. A column is int64 when every cell is
// an integer, float64 when every non-null cell is numeric, and object
// otherwise. Integer columns with nulls become float64.
func (f *Frame) DataTypes() map[string]string {
	out := make(map[string]string, len(f.Headers))
	for col, name := range f.Headers {
		out[name] = f.columnType(col)
	}
	return out
}

func (f *Frame) columnType(col int) string {
	integral, missing := true, false
	for row := range f.Rows {
		cell := f.Cell(row, col)
		if IsMissing(cell) {
			missing = true
			continue
		}
		v, err := ParseNumber(cell)
		if err != nil {
			return TypeObject
		}
		if _, err := strconv.ParseInt(cell, 10, 64); err != nil || math.IsInf(v, 0) {
			integral = false
		}
	}
	if integral && !missing && len(f.Rows) > 0 {
		return TypeInt
	}
	return TypeFloat
}

// Head returns the first n rows as records keyed by column name. Numbers are
// decoded according to the column kind and null cells are nil. Non-finite
// numbers are kept as their raw text.
func (f *Frame) Head(n int) []map[string]interface{} {
	if n > len(f.Rows) {
		n = len(f.Rows)
	}
	types := make([]string, len(f.Headers))
	for col := range f.Headers {
		types[col] = f.columnType(col)
	}

	out := make([]map[string]interface{}, n)
	for row := 0; row < n; row++ {
		rec := make(map[string]interface{}, len(f.Headers))
		for col, name := range f.Headers {
			cell := f.Cell(row, col)
			switch {
			case IsMissing(cell):
				rec[name] = nil
			case types[col] == TypeInt:
				v, _ := strconv.ParseInt(cell, 10, 64)
				rec[name] = v
			case types[col] == TypeFloat:
				v, _ := ParseNumber(cell)
				if math.IsInf(v, 0) || math.IsNaN(v) {
					// JSON has no encoding for these
					rec[name] = strings.TrimSpace(cell)
					break
				}
				rec[name] = v
			default:
				rec[name] = cell
			}
		}
		out[row] = rec
	}
	return out
}

// ValueCounts counts the non-null values of column name.
func (f *Frame) ValueCounts(name string) map[string]int {
	col := f.Index(name)
	if col < 0 {
		return nil
	}
	out := make(map[string]int)
	for row := range f.Rows {
		cell := f.Cell(row, col)
		if IsMissing(cell) {
			continue
		}
		out[cell]++
	}
	return out
}
