package report

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

const (
	filePrefix = "System_Report_"
	fileExt    = ".txt"

	defaultDirMode  = 0o755
	defaultFileMode = 0o644
)

// ErrWriteFailure marks a report that could not be persisted.
var ErrWriteFailure = errors.New("report write failure")

// WriteError carries the target path and cause of a failed write.
type WriteError struct {
	Path string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("report: write %s: %v", e.Path, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

func (e *WriteError) Is(target error) bool { return target == ErrWriteFailure }

// FileName returns System_Report_<host>_<YYYY-MM-DD>.txt.
func FileName(host string, day time.Time) string {
	return filePrefix + host + "_" + day.Format("2006-01-02") + fileExt
}

// Dir returns the per-host report directory under root.
func Dir(root, host string) string {
	return filepath.Join(root, host)
}

// Path returns the report path for host on day.
func Path(root, host string, day time.Time) string {
	return filepath.Join(Dir(root, host), FileName(host, day))
}

// WriteFile atomically replaces path with content. Readers see either the
// previous file or the complete new one; a failed write leaves no partial
// file behind.
func WriteFile(path string, content []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, defaultDirMode); err != nil {
		return &WriteError{Path: path, Err: err}
	}

	// The leading dot keeps the temp file out of report globs.
	f, err := os.CreateTemp(dir, "."+strings.TrimSuffix(filepath.Base(path), fileExt)+"-*.tmp")
	if err != nil {
		return &WriteError{Path: path, Err: err}
	}
	tmp := f.Name()

	if _, err := f.Write(content); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return &WriteError{Path: path, Err: fmt.Errorf("write tmp: %w", err)}
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return &WriteError{Path: path, Err: fmt.Errorf("sync tmp: %w", err)}
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return &WriteError{Path: path, Err: fmt.Errorf("close tmp: %w", err)}
	}
	if err := os.Chmod(tmp, defaultFileMode); err != nil {
		_ = os.Remove(tmp)
		return &WriteError{Path: path, Err: fmt.Errorf("chmod tmp: %w", err)}
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return &WriteError{Path: path, Err: fmt.Errorf("rename: %w", err)}
	}
	return nil
}

// List returns the report files in dir whose name contains host, newest
// modification first.
func List(dir, host string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*"+fileExt))
	if err != nil {
		return nil, err
	}

	type stamped struct {
		path string
		mod  time.Time
	}
	var files []stamped
	for _, m := range matches {
		base := filepath.Base(m)
		if strings.HasPrefix(base, ".") || !strings.Contains(base, host) {
			continue
		}
		info, err := os.Stat(m)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		files = append(files, stamped{path: m, mod: info.ModTime()})
	}

	sort.SliceStable(files, func(i, j int) bool {
		if files[i].mod.Equal(files[j].mod) {
			return files[i].path > files[j].path
		}
		return files[i].mod.After(files[j].mod)
	})
	out := make([]string, len(files))
	for i, f := range files {
		out[i] = f.path
	}
	return out, nil
}

// Latest returns the most recently modified report for host in dir, or
// os.ErrNotExist when there is none.
func Latest(dir, host string) (string, error) {
	files, err := List(dir, host)
	if err != nil {
		return "", err
	}
	if len(files) == 0 {
		return "", fmt.Errorf("report: no reports for %s in %s: %w", host, dir, os.ErrNotExist)
	}
	return files[0], nil
}

// Prune keeps the newest keep reports for host in dir and removes the rest.
// keep <= 0 keeps everything.
func Prune(dir, host string, keep int) ([]string, error) {
	if keep <= 0 {
		return nil, nil
	}
	matches, err := filepath.Glob(filepath.Join(dir, filePrefix+host+"_*"+fileExt))
	if err != nil {
		return nil, err
	}
	if len(matches) <= keep {
		return nil, nil
	}

	// The date is embedded in the name, so lexical order is chronological.
	sort.Slice(matches, func(i, j int) bool { return matches[i] > matches[j] })

	var removed []string
	for _, old := range matches[keep:] {
		if err := os.Remove(old); err != nil && !os.IsNotExist(err) {
			return removed, fmt.Errorf("report: prune %s: %w", old, err)
		}
		removed = append(removed, old)
	}
	return removed, nil
}
