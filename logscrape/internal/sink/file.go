package sink

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hazyhaar/chatlogs/logscrape/record"
)

// File writes the transcript's messages as one JSON array. The file is
// replaced atomically, so a reader never sees half a transcript.
type File struct {
	path string
}

// NewFile creates a File sink writing to path. Parent directories are
// created on first write.
func NewFile(path string) *File { return &File{path: path} }

// Path returns the output path.
func (f *File) Path() string { return f.path }

func (f *File) Write(_ context.Context, t record.Transcript) error {
	data, err := record.MarshalMessages(t.Messages)
	if err != nil {
		return fmt.Errorf("file sink: %w", err)
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("file sink: mkdir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(f.path)+".*")
	if err != nil {
		return fmt.Errorf("file sink: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("file sink: write: %w", err)
	}
	// CreateTemp opens with 0600; transcripts are ordinary output files.
	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("file sink: chmod: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("file sink: close: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("file sink: rename: %w", err)
	}
	return nil
}

func (f *File) Close() error { return nil }
