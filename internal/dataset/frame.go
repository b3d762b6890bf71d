// Package dataset loads, inspects and generates the tabular CSV files the
// classifier is trained on.
package dataset

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/YuminosukeSato/exoplanet-classifier/pkg/errors"
)

// Frame is a parsed CSV table. Rows may be ragged; Cell pads them with "".
type Frame struct {
	Headers  []string
	Rows     [][]string
	FileName string
	FilePath string

	index map[string]int
}

// missingTokens are the cell values read as null, in addition to "".
var missingTokens = map[string]bool{
	"NA": true, "N/A": true, "n/a": true, "NaN": true, "nan": true, "-NaN": true, "-nan": true,
	"null": true, "NULL": true, "None": true, "<NA>": true,
}

// IsMissing reports whether a raw cell is null.
func IsMissing(cell string) bool {
	cell = strings.TrimSpace(cell)
	return cell == "" || missingTokens[cell]
}

// ParseNumber parses a non-missing cell as float64.
func ParseNumber(cell string) (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(cell), 64)
}

func newReader(data []byte, comma rune) *csv.Reader {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.Comma = comma
	reader.Comment = '#'
	reader.FieldsPerRecord = -1 // Allow variable fields
	reader.TrimLeadingSpace = true
	return reader
}

// ReadCSV parses a CSV stream. Lines starting with '#' are comments, as in
// the NASA archive exports. A header that only splits on ';' switches the
// separator to semicolon.
func ReadCSV(r io.Reader) (*Frame, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, "read csv")
	}

	reader := newReader(data, ',')
	headers, err := reader.Read()
	if err == nil && len(headers) == 1 && strings.Contains(headers[0], ";") {
		reader = newReader(data, ';')
		headers, err = reader.Read()
	}
	if err == io.EOF {
		return nil, errors.NewValidationError("file", "csv file is empty", nil)
	}
	if err != nil {
		return nil, errors.NewValidationError("file", "failed to read csv header: "+err.Error(), nil)
	}

	for i, h := range headers {
		headers[i] = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
	}

	f := &Frame{Headers: headers}
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, malformed(err)
		}
		f.Rows = append(f.Rows, record)
	}
	return f, nil
}

// malformed turns a record error into a ValidationError naming the line.
func malformed(err error) error {
	var pe *csv.ParseError
	if errors.As(err, &pe) {
		return errors.NewValidationError("file",
			fmt.Sprintf("malformed csv record on line %d: %v", pe.Line, pe.Err), nil)
	}
	return errors.NewValidationError("file", "malformed csv record: "+err.Error(), nil)
}

// Load reads a CSV file. A missing file is a NotFoundError.
func Load(path string) (*Frame, error) {
	file, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, errors.NewNotFoundError("dataset", path)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "open dataset %s", path)
	}
	defer file.Close()

	f, err := ReadCSV(file)
	if err != nil {
		return nil, err
	}
	f.FilePath = path
	f.FileName = filepath.Base(path)
	return f, nil
}

// NRows returns the number of data rows.
func (f *Frame) NRows() int { return len(f.Rows) }

// NCols returns the number of header columns.
func (f *Frame) NCols() int { return len(f.Headers) }

// Index returns the position of column name, or -1.
func (f *Frame) Index(name string) int {
	if f.index == nil || len(f.index) != len(f.Headers) {
		f.index = make(map[string]int, len(f.Headers))
		for i := len(f.Headers) - 1; i >= 0; i-- {
			f.index[f.Headers[i]] = i
		}
	}
	if i, ok := f.index[name]; ok {
		return i
	}
	return -1
}

// Has reports whether the frame has column name.
func (f *Frame) Has(name string) bool { return f.Index(name) >= 0 }

// Cell returns the trimmed cell at (row, col), or "" past the end of a short row.
func (f *Frame) Cell(row, col int) string {
	r := f.Rows[row]
	if col < 0 || col >= len(r) {
		return ""
	}
	return strings.TrimSpace(r[col])
}

// Column returns every cell of column name.
func (f *Frame) Column(name string) ([]string, bool) {
	col := f.Index(name)
	if col < 0 {
		return nil, false
	}
	out := make([]string, len(f.Rows))
	for i := range f.Rows {
		out[i] = f.Cell(i, col)
	}
	return out, true
}

// MissingColumns returns the names from want that are absent, in order.
func (f *Frame) MissingColumns(want []string) []string {
	var missing []string
	for _, name := range want {
		if !f.Has(name) {
			missing = append(missing, name)
		}
	}
	return missing
}

// WriteCSV writes the header and rows.
func (f *Frame) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(f.Headers); err != nil {
		return errors.Wrap(err, "write csv header")
	}
	if err := cw.WriteAll(f.Rows); err != nil {
		return errors.Wrap(err, "write csv rows")
	}
	return nil
}

// WriteFile writes the frame to path through a temporary file in the same
// directory, so readers never see a partial file.
func (f *Frame) WriteFile(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "create %s", dir)
	}
	tmp := filepath.Join(dir, "."+filepath.Base(path)+".tmp-"+uuid.NewString())
	file, err := os.Create(tmp)
	if err != nil {
		return errors.Wrapf(err, "create %s", tmp)
	}
	if err := f.WriteCSV(file); err != nil {
		file.Close()
		os.Remove(tmp)
		return err
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(tmp)
		return errors.Wrap(err, "sync dataset")
	}
	if err := file.Close(); err != nil {
		os.Remove(tmp)
		return errors.Wrap(err, "close dataset")
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return errors.Wrapf(err, "rename %s", tmp)
	}
	f.FilePath = path
	return nil
}
