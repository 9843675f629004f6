package cache

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/dpe-analyse/dpe-client/pkg/record"
)

// Table is the tabular form of a fetch result.
type Table struct {
	// Columns is the union of all record keys, in order of first appearance.
	Columns []string

	Records []record.Record
}

// NewTable builds a table from records.
func NewTable(records []record.Record) *Table {
	return &Table{
		Columns: record.Columns(records),
		Records: records,
	}
}

// Len returns the number of rows.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Records)
}

// Column returns the cell values of one column, "" for absent or null cells.
func (t *Table) Column(name string) []string {
	out := make([]string, len(t.Records))
	for i, rec := range t.Records {
		if v, ok := rec.Get(name); ok {
			out[i] = v.Text()
		}
	}
	return out
}

// HasColumn reports whether the table has a column called name.
func (t *Table) HasColumn(name string) bool {
	for _, c := range t.Columns {
		if c == name {
			return true
		}
	}
	return false
}

// WriteTo writes t as CSV: a header row, then one row per record. A table
// without columns produces no output at all.
func (t *Table) WriteTo(w io.Writer) (int64, error) {
	if len(t.Columns) == 0 {
		return 0, nil
	}

	cw := &countingWriter{w: w}
	csvw := csv.NewWriter(cw)
	if err := csvw.Write(t.Columns); err != nil {
		return cw.n, err
	}

	row := make([]string, len(t.Columns))
	for _, rec := range t.Records {
		for i, col := range t.Columns {
			row[i] = ""
			if v, ok := rec.Get(col); ok {
				row[i] = v.Text()
			}
		}
		if err := csvw.Write(row); err != nil {
			return cw.n, err
		}
	}
	csvw.Flush()
	return cw.n, csvw.Error()
}

// WriteTable writes t to path atomically: the rows go to a temporary file in
// the same directory, which is then renamed over path. It returns the size of
// the written file.
func WriteTable(path string, t *Table) (int64, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("create cache dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return 0, err
	}
	tmpPath := tmp.Name()

	bw := bufio.NewWriter(tmp)
	n, err := t.WriteTo(bw)
	if err == nil {
		err = bw.Flush()
	}
	if err == nil {
		err = tmp.Sync()
	}
	if err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return 0, err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return 0, err
	}
	_ = os.Chmod(tmpPath, 0o644)

	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return 0, err
	}
	return n, nil
}

// ReadTable loads a cache file. Every non-empty cell is parsed back into a
// number when it reads as one, a string otherwise; empty cells are null.
func ReadTable(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(bufio.NewReader(f))
	r.ReuseRecord = true

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return &Table{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read header of %s: %w", path, err)
	}
	t := &Table{Columns: append([]string(nil), header...)}

	for {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		rec := record.New()
		for i, col := range t.Columns {
			rec.Set(col, record.ParseCell(row[i]))
		}
		t.Records = append(t.Records, rec)
	}
	return t, nil
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
