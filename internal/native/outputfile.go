package native

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"unicode/utf16"

	"github.com/cespare/xxhash/v2"
)

// windowsMaxPath is MAX_PATH, including the terminating NUL
const windowsMaxPath = 260

// DefaultMaxPathLength is the longest path accepted on the current platform, 0 if there is no
// limit. On Windows that is MAX_PATH minus the NUL, so paths of 260 units or more are rejected.
func DefaultMaxPathLength() int {
	if runtime.GOOS == "windows" {
		return windowsMaxPath - 1
	}
	return 0
}

// OutputNamer maps source files to object files under an object directory
type OutputNamer struct {
	Suffix        string
	MaxPathLength int // 0 disables the check
}

// Path returns the absolute object file path for source without touching the filesystem.
//
// Objects live in a directory named after a hash of the absolute source path, so two
// different sources never share a directory even when their file names match.
func (n OutputNamer) Path(source, objectDir string) (string, error) {
	abs, err := filepath.Abs(source)
	if err != nil {
		return "", err
	}
	name := filepath.Base(abs)
	stem := strings.TrimSuffix(name, filepath.Ext(name))
	dir := fmt.Sprintf("%016x", xxhash.Sum64String(filepath.ToSlash(abs)))

	objectDir, err = filepath.Abs(objectDir)
	if err != nil {
		return "", err
	}
	out := filepath.Join(objectDir, dir, stem+n.Suffix)
	if n.MaxPathLength > 0 {
		if l := pathLength(out, runtime.GOOS); l > n.MaxPathLength {
			return "", fmt.Errorf("%w: %s (%d > %d)", ErrPathTooLong, out, l, n.MaxPathLength)
		}
	}
	return out, nil
}

// pathLength measures path the way the OS does: UTF-16 code units on Windows, bytes elsewhere
func pathLength(path, goos string) int {
	if goos != "windows" {
		return len(path)
	}
	n := 0
	for _, r := range path {
		n += utf16.RuneLen(r)
	}
	return n
}

// Resolve returns the object file path for source and makes sure its directory exists
func (n OutputNamer) Resolve(source, objectDir string) (string, error) {
	out, err := n.Path(source, objectDir)
	if err != nil {
		return "", err
	}
	if err := ensureDir(filepath.Dir(out)); err != nil {
		return "", err
	}
	return out, nil
}

// ensureDir creates dir and its parents. Another worker creating it first is not an error.
func ensureDir(dir string) error {
	err := os.MkdirAll(dir, 0o755)
	if err == nil || errors.Is(err, fs.ErrExist) {
		// MkdirAll can race with itself and report EEXIST; make sure it really is a directory
		if stat, serr := os.Stat(dir); serr == nil && stat.IsDir() {
			return nil
		}
	}
	if err == nil {
		err = fmt.Errorf("%s is not a directory", dir)
	}
	return fmt.Errorf("%w %s: %w", ErrCreateDir, dir, err)
}
