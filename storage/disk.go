package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"musicbox/logger"

	"github.com/spf13/afero"
)

var (
	// ErrStorageWriteFailed wraps any failure to persist an upload.
	ErrStorageWriteFailed = errors.New("storage write failed")
	// ErrNotFound is returned when the named file does not exist.
	ErrNotFound = errors.New("file not found")
	// ErrInvalidName is returned for names that could escape the root.
	ErrInvalidName = errors.New("invalid file name")
)

const tempSuffix = ".part"

// Disk stores uploaded files flat inside a single root directory.
type Disk struct {
	fs   afero.Fs
	root string
}

// NewDisk returns a Disk rooted at root, creating the directory if needed.
func NewDisk(fs afero.Fs, root string) (*Disk, error) {
	if err := fs.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create upload directory %s: %w", root, err)
	}
	return &Disk{fs: fs, root: root}, nil
}

// NewOsDisk is NewDisk on the real filesystem.
func NewOsDisk(root string) (*Disk, error) {
	return NewDisk(afero.NewOsFs(), root)
}

// Root returns the upload directory.
func (d *Disk) Root() string {
	return d.root
}

// checkName rejects anything that is not a plain file name.
func checkName(name string) error {
	if name == "" || name == "." || name == ".." ||
		strings.ContainsAny(name, `/\`+"\x00") ||
		strings.Contains(name, "..") ||
		filepath.Base(name) != name {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

// Save streams r into the named file and returns the number of bytes written.
// Data goes to a temporary file first and is renamed into place, so readers
// never observe a half-written upload. On failure the temporary file is removed.
func (d *Disk) Save(name string, r io.Reader) (int64, error) {
	if err := checkName(name); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStorageWriteFailed, err)
	}
	final := filepath.Join(d.root, name)
	temp := final + tempSuffix

	f, err := d.fs.OpenFile(temp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return 0, fmt.Errorf("%w: create %s: %v", ErrStorageWriteFailed, name, err)
	}

	written, err := io.Copy(f, r)
	if err == nil {
		err = f.Sync()
	}
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err == nil {
		err = d.fs.Rename(temp, final)
	}
	if err != nil {
		if rmErr := d.fs.Remove(temp); rmErr != nil && !os.IsNotExist(rmErr) {
			logger.Warn("failed to remove partial upload",
				logger.String("path", temp),
				logger.ErrorField(rmErr))
		}
		return 0, fmt.Errorf("%w: write %s: %v", ErrStorageWriteFailed, name, err)
	}
	return written, nil
}

// Remove deletes the named file. A missing file is not an error.
func (d *Disk) Remove(name string) error {
	if err := checkName(name); err != nil {
		return err
	}
	err := d.fs.Remove(filepath.Join(d.root, name))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove %s: %w", name, err)
	}
	return nil
}

// Open returns the named file for reading together with its metadata.
func (d *Disk) Open(name string) (afero.File, os.FileInfo, error) {
	if err := checkName(name); err != nil {
		return nil, nil, err
	}
	f, err := d.fs.Open(filepath.Join(d.root, name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return nil, nil, fmt.Errorf("failed to open %s: %w", name, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("failed to stat %s: %w", name, err)
	}
	if info.IsDir() {
		f.Close()
		return nil, nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return f, info, nil
}

// List returns the names of all stored files, skipping in-flight temp files.
func (d *Disk) List() ([]string, error) {
	entries, err := afero.ReadDir(d.fs, d.root)
	if err != nil {
		return nil, fmt.Errorf("failed to read upload directory: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || strings.HasSuffix(e.Name(), tempSuffix) {
			continue
		}
		names = append(names, e.Name())
	}
	return names, nil
}
