// Package sysfstest provides an in-memory sysfs for tests.
package sysfstest

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/afero"
)

// Write is one recorded write to a file.
type Write struct {
	Path string
	Data string
}

// Fs wraps an afero.Fs, records every write in order and can make writes
// to selected paths fail.
type Fs struct {
	afero.Fs

	mu     sync.Mutex
	writes []Write
	fail   map[string]error
}

// New returns an empty in-memory filesystem.
func New() *Fs {
	return &Fs{Fs: afero.NewMemMapFs(), fail: map[string]error{}}
}

// File creates path with content, creating parent directories.
func (f *Fs) File(path, content string) *Fs {
	f.Dir(filepath.Dir(path))
	if err := afero.WriteFile(f.Fs, path, []byte(content), 0o644); err != nil {
		panic(err)
	}
	return f
}

// Dir creates a directory tree.
func (f *Fs) Dir(path string) *Fs {
	if err := f.Fs.MkdirAll(path, 0o755); err != nil {
		panic(err)
	}
	return f
}

// FailWrites makes every later write to path return err.
func (f *Fs) FailWrites(path string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail[path] = err
}

// Writes returns the recorded writes.
func (f *Fs) Writes() []Write {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Write(nil), f.writes...)
}

// WritesTo returns the data written to path, in order.
func (f *Fs) WritesTo(path string) []string {
	var out []string
	for _, w := range f.Writes() {
		if w.Path == path {
			out = append(out, w.Data)
		}
	}
	return out
}

// Read returns the current content of path, or "" if it does not exist.
func (f *Fs) Read(path string) string {
	data, err := afero.ReadFile(f.Fs, path)
	if err != nil {
		return ""
	}
	return string(data)
}

// Reset forgets recorded writes.
func (f *Fs) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes = nil
}

func (f *Fs) OpenFile(name string, flag int, perm os.FileMode) (afero.File, error) {
	if flag&(os.O_WRONLY|os.O_RDWR) == 0 {
		return f.Fs.OpenFile(name, flag, perm)
	}
	f.mu.Lock()
	err := f.fail[name]
	f.mu.Unlock()
	if err != nil {
		return nil, &os.PathError{Op: "open", Path: name, Err: err}
	}
	file, err := f.Fs.OpenFile(name, flag, perm)
	if err != nil {
		return nil, err
	}
	return &recordingFile{File: file, fs: f, path: name}, nil
}

func (f *Fs) Create(name string) (afero.File, error) {
	return f.OpenFile(name, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o666)
}

type recordingFile struct {
	afero.File
	fs   *Fs
	path string
}

func (r *recordingFile) Write(p []byte) (int, error) {
	r.fs.mu.Lock()
	r.fs.writes = append(r.fs.writes, Write{Path: r.path, Data: string(p)})
	r.fs.mu.Unlock()
	return r.File.Write(p)
}

func (r *recordingFile) WriteString(s string) (int, error) {
	return r.Write([]byte(s))
}
