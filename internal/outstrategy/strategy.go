// Package outstrategy implements the pluggable output destination for a
// completed [file(...)] writer (spec §3 "Output Strategy"): a file-system
// strategy that reads/writes real files, and an in-memory strategy used by
// tests and by other callers that must not touch disk.
package outstrategy

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/transform"

	"github.com/mtlforge/mtlgen/internal/mtlast"
	"github.com/mtlforge/mtlgen/internal/mtlerrors"
)

// Strategy is the seam the execution context writes finalized file content
// through. Exists/ReadExisting feed the protected-area scan that must run
// before a file is (re)generated (spec §5); Finalize commits content
// according to mode, re-encoding to charset when it names anything other
// than UTF-8 (spec §4.9).
type Strategy interface {
	Exists(path string) (bool, error)
	ReadExisting(path string) (string, error)
	Finalize(path, content string, mode mtlast.FileMode, charset string) error
}

// isUTF8 reports whether charset names the default encoding (spec §3
// "Module" default output encoding, §4.8 "file" charset default), so
// Finalize can skip the htmlindex round-trip for the overwhelmingly common
// case.
func isUTF8(charset string) bool {
	switch strings.ToLower(strings.TrimSpace(charset)) {
	case "", "utf-8", "utf8":
		return true
	default:
		return false
	}
}

// encode re-encodes content from its canonical UTF-8 form to charset,
// returning a *mtlerrors.ExecError (FileError) if charset names no
// encoding htmlindex recognises (spec §4.8 requires the charset expression
// be honored, not silently ignored).
func encode(content, charset string) ([]byte, error) {
	if isUTF8(charset) {
		return []byte(content), nil
	}
	enc, err := htmlindex.Get(charset)
	if err != nil {
		return nil, mtlerrors.NewFileError(fmt.Sprintf("unknown charset %q: %v", charset, err))
	}
	out, _, err := transform.String(enc.NewEncoder(), content)
	if err != nil {
		return nil, mtlerrors.NewFileError(fmt.Sprintf("encoding to %q: %v", charset, err))
	}
	return []byte(out), nil
}

// FileSystem is the default Strategy, backed by the real filesystem.
type FileSystem struct{}

// NewFileSystem returns the filesystem-backed Strategy.
func NewFileSystem() *FileSystem { return &FileSystem{} }

func (f *FileSystem) Exists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

func (f *FileSystem) ReadExisting(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", err
	}
	return string(data), nil
}

func (f *FileSystem) Finalize(path, content string, mode mtlast.FileMode, charset string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("outstrategy: mkdir for %s: %w", path, err)
	}
	data, err := encode(content, charset)
	if err != nil {
		return err
	}
	switch mode {
	case mtlast.FileCreate:
		exists, err := f.Exists(path)
		if err != nil {
			return err
		}
		if exists {
			return mtlerrors.NewFileError(fmt.Sprintf("create mode: %s already exists", path))
		}
		return os.WriteFile(path, data, 0o644)
	case mtlast.FileAppend:
		fh, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("outstrategy: open %s for append: %w", path, err)
		}
		defer fh.Close()
		_, err = fh.Write(data)
		return err
	default: // FileOverwrite
		return os.WriteFile(path, data, 0o644)
	}
}

// InMemory is a Strategy that keeps every finalized file in a map, never
// touching disk. Used by tests and embeddable tooling; the LSP server only
// parses and does not use it. Content is kept in its canonical UTF-8 string form regardless of
// charset (callers inspecting Files() want the generated text, not an
// encoded byte dump); charset is still validated against htmlindex so a
// bogus charset fails the same way it would against the file-system
// strategy.
type InMemory struct {
	mu    sync.RWMutex
	files map[string]string
}

// NewInMemory returns an empty in-memory Strategy.
func NewInMemory() *InMemory {
	return &InMemory{files: make(map[string]string)}
}

func (m *InMemory) Exists(path string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.files[path]
	return ok, nil
}

func (m *InMemory) ReadExisting(path string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.files[path], nil
}

func (m *InMemory) Finalize(path, content string, mode mtlast.FileMode, charset string) error {
	if !isUTF8(charset) {
		if _, err := htmlindex.Get(charset); err != nil {
			return mtlerrors.NewFileError(fmt.Sprintf("unknown charset %q: %v", charset, err))
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	switch mode {
	case mtlast.FileCreate:
		if _, exists := m.files[path]; exists {
			return mtlerrors.NewFileError(fmt.Sprintf("create mode: %s already exists", path))
		}
		m.files[path] = content
	case mtlast.FileAppend:
		m.files[path] += content
	default:
		m.files[path] = content
	}
	return nil
}

// Files returns a snapshot copy of every finalized file, keyed by path.
func (m *InMemory) Files() map[string]string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]string, len(m.files))
	for k, v := range m.files {
		out[k] = v
	}
	return out
}
