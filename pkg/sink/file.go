package sink

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Sternrassler/ucsb-curriculum-client/pkg/logging"
	"github.com/rs/zerolog"
)

// FileSink writes the catalog as a JSON array to a local file.
type FileSink struct {
	path   string
	logger zerolog.Logger
}

// NewFileSink creates a file sink. An empty path means DefaultFileName in
// the working directory.
func NewFileSink(path string) *FileSink {
	if path == "" {
		path = DefaultFileName
	}
	return &FileSink{
		path:   path,
		logger: logging.NewLogger("sink"),
	}
}

// Path returns the output path.
func (f *FileSink) Path() string {
	return f.path
}

// Name implements Sink.
func (f *FileSink) Name() string {
	return "file"
}

// Write implements Sink. The file is replaced atomically: data goes to a
// temporary file in the same directory which is then renamed over path.
func (f *FileSink) Write(ctx context.Context, catalog Catalog) (err error) {
	data, err := EncodeCourses(catalog.Courses)
	if err != nil {
		record(f.Name(), 0, err)
		return err
	}
	defer func() { record(f.Name(), len(data), err) }()

	if err := ctx.Err(); err != nil {
		return err
	}

	dir := filepath.Dir(f.path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(f.path)+".*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", tmpName, err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("chmod %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		return fmt.Errorf("rename to %s: %w", f.path, err)
	}

	f.logger.Info().
		Str("path", f.path).
		Int("courses", len(catalog.Courses)).
		Int("bytes", len(data)).
		Msg("Catalog written")

	return nil
}
