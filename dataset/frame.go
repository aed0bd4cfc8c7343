// Package dataset holds raw tabular data as read from delimited files and
// the seeded train/test partitioning applied to it.
package dataset

import (
	"bufio"
	"encoding/csv"
	"io"
	"os"
	"strings"

	"github.com/YuminosukeSato/mlpipe/pkg/errors"
)

// Frame is a header plus rows of raw string cells. Operations on a Frame
// return new frames and never modify the receiver.
type Frame struct {
	Header []string
	Rows   [][]string
}

// Len returns the number of data rows.
func (f *Frame) Len() int {
	return len(f.Rows)
}

// ColumnIndex returns the position of name in the header, or -1.
func (f *Frame) ColumnIndex(name string) int {
	for i, h := range f.Header {
		if h == name {
			return i
		}
	}
	return -1
}

// HasColumn reports whether the header contains name.
func (f *Frame) HasColumn(name string) bool {
	return f.ColumnIndex(name) >= 0
}

// Column returns a copy of the cells of the named column.
func (f *Frame) Column(name string) ([]string, error) {
	idx := f.ColumnIndex(name)
	if idx < 0 {
		return nil, errors.Newf("column %q not found", name)
	}
	out := make([]string, len(f.Rows))
	for i, row := range f.Rows {
		out[i] = row[idx]
	}
	return out, nil
}

// Take returns a frame holding the rows at indices, in that order.
func (f *Frame) Take(indices []int) *Frame {
	rows := make([][]string, len(indices))
	for i, idx := range indices {
		rows[i] = append([]string(nil), f.Rows[idx]...)
	}
	return &Frame{Header: append([]string(nil), f.Header...), Rows: rows}
}

// Drop returns a frame without the named column.
func (f *Frame) Drop(name string) *Frame {
	idx := f.ColumnIndex(name)
	if idx < 0 {
		return f.Take(seq(f.Len()))
	}
	header := make([]string, 0, len(f.Header)-1)
	header = append(header, f.Header[:idx]...)
	header = append(header, f.Header[idx+1:]...)
	rows := make([][]string, len(f.Rows))
	for i, row := range f.Rows {
		r := make([]string, 0, len(row)-1)
		r = append(r, row[:idx]...)
		rows[i] = append(r, row[idx+1:]...)
	}
	return &Frame{Header: header, Rows: rows}
}

// Records converts every row into a Record keyed by column name.
func (f *Frame) Records() []Record {
	out := make([]Record, len(f.Rows))
	for i, row := range f.Rows {
		rec := make(Record, len(f.Header))
		for j, h := range f.Header {
			rec[h] = row[j]
		}
		out[i] = rec
	}
	return out
}

// ReadCSV reads a comma-separated stream whose first row is the header.
// Every row must have as many cells as the header.
func ReadCSV(r io.Reader) (*Frame, error) {
	reader := csv.NewReader(bufio.NewReader(r))
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, errors.New("input has no header row")
	}
	if err != nil {
		return nil, errors.Wrap(err, "read header")
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}
	header[0] = strings.TrimPrefix(header[0], "\ufeff")

	records, err := reader.ReadAll()
	if err != nil {
		return nil, errors.Wrap(err, "read rows")
	}
	return &Frame{Header: header, Rows: records}, nil
}

// ReadCSVFile reads a CSV file with ReadCSV.
func ReadCSVFile(path string) (*Frame, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	defer file.Close()
	frame, err := ReadCSV(file)
	if err != nil {
		return nil, errors.Wrapf(err, "parse %s", path)
	}
	return frame, nil
}

// WriteCSV writes the header followed by every row.
func (f *Frame) WriteCSV(w io.Writer) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(f.Header); err != nil {
		return errors.Wrap(err, "write header")
	}
	if err := writer.WriteAll(f.Rows); err != nil {
		return errors.Wrap(err, "write rows")
	}
	return nil
}

func seq(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}
