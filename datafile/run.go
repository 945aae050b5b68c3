package datafile

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// Run is the directory holding every file of one scan.
type Run struct {
	ID      uuid.UUID
	Dir     string
	Started time.Time
}

// NewRun creates root/<date>/<time>_<name>.
func NewRun(root, name string, now time.Time) (*Run, error) {
	dir := filepath.Join(root, now.Format("20060102"), now.Format("150405")+"_"+name)
	err := os.MkdirAll(dir, 0755)
	if err != nil {
		return nil, fmt.Errorf("create run dir: %w", err)
	}
	return &Run{ID: uuid.New(), Dir: dir, Started: now}, nil
}

// Create opens <name>.dat in the run directory.
func (r *Run) Create(name string) (*File, error) {
	return Create(filepath.Join(r.Dir, name+".dat"), r.ID, r.Started)
}

// CopyFile stores a copy of src, such as the parameter file, with the data.
func (r *Run) CopyFile(src string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(filepath.Join(r.Dir, filepath.Base(src)))
	if err != nil {
		return err
	}
	_, err = io.Copy(out, in)
	if err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// Sinks are the standard data files of an approach imaging run.
type Sinks struct {
	Full    *File
	Spatial Split
}

// OpenSinks creates approach_curves.dat plus one spatial file per sweep
// direction.
func (r *Run) OpenSinks() (*Sinks, error) {
	full, err := r.Create("approach_curves")
	if err != nil {
		return nil, err
	}
	out, err := r.Create("spatial_data_right")
	if err != nil {
		full.Close()
		return nil, err
	}
	ret, err := r.Create("spatial_data_left")
	if err != nil {
		full.Close()
		out.Close()
		return nil, err
	}
	return &Sinks{Full: full, Spatial: Split{Outbound: out, Return: ret}}, nil
}
