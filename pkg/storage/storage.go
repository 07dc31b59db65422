package storage

import (
	"fmt"
	"github.com/google/uuid"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const timestampLayout = "20060102_150405"

// StoredFile is an upload written to the upload directory.
type StoredFile struct {
	OriginalName string
	Name         string
	Path         string
	Size         int64
}

// Local keeps uploads and derived videos side by side in one flat directory.
type Local struct {
	dir   string
	now   func() time.Time
	token func() string
}

func NewLocal(dir string) (*Local, error) {
	if err := os.MkdirAll(dir, os.ModePerm); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &Local{
		dir:   dir,
		now:   time.Now,
		token: NewToken,
	}, nil
}

func (l *Local) Dir() string {
	return l.dir
}

func (l *Local) Path(name string) string {
	return filepath.Join(l.dir, name)
}

// Save writes content under a freshly generated storage name. Only the base
// name of originalName is kept.
func (l *Local) Save(originalName string, content io.Reader) (*StoredFile, error) {
	if err := os.MkdirAll(l.dir, os.ModePerm); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}

	original := baseName(originalName)
	name := GenerateName(l.now(), l.token(), original)
	path := l.Path(name)

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", name, err)
	}

	size, err := io.Copy(f, content)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("write %s: %w", name, err)
	}

	return &StoredFile{
		OriginalName: original,
		Name:         name,
		Path:         path,
		Size:         size,
	}, nil
}

func baseName(name string) string {
	base := filepath.Base(filepath.Clean("/" + strings.ReplaceAll(name, "\\", "/")))
	if base == "/" || base == "." {
		return "upload"
	}
	return base
}

// GenerateName builds "<UTC timestamp>_<token>_<original>".
func GenerateName(now time.Time, token, original string) string {
	return fmt.Sprintf("%s_%s_%s", now.UTC().Format(timestampLayout), token, original)
}

// NewToken returns a random version 4 UUID as 32 lowercase hex characters.
func NewToken() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// AnnotatedName derives "<stem>_annotated<suffix>" from a file name. The
// suffix starts at the last dot unless that dot leads or ends the name.
func AnnotatedName(name string) string {
	stem, ext := name, ""
	if i := strings.LastIndex(name, "."); i > 0 && i < len(name)-1 {
		stem, ext = name[:i], name[i:]
	}
	return stem + "_annotated" + ext
}
