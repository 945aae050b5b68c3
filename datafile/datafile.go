// Package datafile stores scan records as tab-separated text, one block of
// rows per approach curve or scan line, with blank lines between blocks.
package datafile

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mastercactapus/mimscan/machine"
)

// ErrClosed is returned when writing to a closed File.
var ErrClosed = errors.New("datafile: closed")

// File is a machine.DataSink backed by a .dat file.
type File struct {
	path    string
	run     uuid.UUID
	created time.Time

	mx      sync.Mutex
	f       *os.File
	w       *bufio.Writer
	columns []string
	rows    int // rows in the current block
}

var _ machine.DataSink = &File{}

// Create opens path for writing. The header is written with the first
// record, since that is when the columns are known.
func Create(path string, run uuid.UUID, created time.Time) (*File, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	return &File{
		path:    path,
		run:     run,
		created: created,
		f:       f,
		w:       bufio.NewWriter(f),
	}, nil
}

// Path returns the file name.
func (f *File) Path() string { return f.path }

func (f *File) writeHeader(columns []string) {
	fmt.Fprintf(f.w, "# Filename: %s\n", filepath.Base(f.path))
	fmt.Fprintf(f.w, "# Run: %s\n", f.run)
	fmt.Fprintf(f.w, "# Timestamp: %s\n", f.created.Format(time.ANSIC))
	for i, c := range columns {
		fmt.Fprintf(f.w, "# Column %d:\n#\tname: %s\n", i+1, c)
	}
	f.w.WriteString("\n")
	f.columns = append([]string(nil), columns...)
}

// Append writes every row of r. All records in a file must share columns.
func (f *File) Append(r machine.Record) error {
	f.mx.Lock()
	defer f.mx.Unlock()
	if f.f == nil {
		return ErrClosed
	}

	cols := r.Columns()
	if f.columns == nil {
		f.writeHeader(cols)
	} else if len(cols) != len(f.columns) {
		return fmt.Errorf("datafile: got %d columns, file has %d", len(cols), len(f.columns))
	}

	var buf []byte
	for _, row := range r.Rows() {
		if len(row) != len(f.columns) {
			return fmt.Errorf("datafile: row has %d values, want %d", len(row), len(f.columns))
		}
		buf = buf[:0]
		for i, v := range row {
			if i > 0 {
				buf = append(buf, '\t')
			}
			buf = strconv.AppendFloat(buf, v, 'g', -1, 64)
		}
		buf = append(buf, '\n')
		_, err := f.w.Write(buf)
		if err != nil {
			return err
		}
		f.rows++
	}

	return f.w.Flush()
}

// NewBlock ends the current block. Empty blocks are not written.
func (f *File) NewBlock() error {
	f.mx.Lock()
	defer f.mx.Unlock()
	if f.f == nil {
		return ErrClosed
	}
	if f.rows == 0 {
		return nil
	}
	f.rows = 0
	_, err := f.w.WriteString("\n")
	if err != nil {
		return err
	}
	return f.w.Flush()
}

// Close flushes and closes the file. Closing twice is not an error.
func (f *File) Close() error {
	f.mx.Lock()
	defer f.mx.Unlock()
	if f.f == nil {
		return nil
	}
	err := f.w.Flush()
	cerr := f.f.Close()
	f.f = nil
	if err != nil {
		return err
	}
	return cerr
}
