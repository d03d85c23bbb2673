package relay

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/spf13/afero"
)

// scratchFile is the single temporary copy of an attachment owned by one
// relay. It is created exclusively under a name no other relay can pick.
type scratchFile struct {
	afero.File
	fs   afero.Fs
	path string
}

func acquireScratch(fs afero.Fs, dir string, updateID int64, fileName string) (*scratchFile, error) {
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create scratch dir: %w", err)
	}
	name := fmt.Sprintf("%d-%s-%s", updateID, uuid.NewString(), sanitizeFileName(fileName))
	path := filepath.Join(dir, name)
	f, err := fs.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return nil, fmt.Errorf("create scratch file: %w", err)
	}
	return &scratchFile{File: f, fs: fs, path: path}, nil
}

func (s *scratchFile) Path() string { return s.path }

// Rewind positions the file for reading back what was written.
func (s *scratchFile) Rewind() error {
	_, err := s.Seek(0, io.SeekStart)
	return err
}

// Release closes and removes the file. A file that is already gone is fine.
func (s *scratchFile) Release() error {
	_ = s.File.Close()
	if err := s.fs.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

const maxScratchNameBytes = 120

func sanitizeFileName(name string) string {
	name = strings.NewReplacer("/", "_", "\\", "_", "\x00", "").Replace(name)
	name = strings.TrimSpace(name)
	if name == "" || name == "." || name == ".." {
		return defaultFileName
	}
	if len(name) > maxScratchNameBytes {
		// keep the tail, which holds the extension, starting on a rune boundary
		start := len(name) - maxScratchNameBytes
		for start < len(name) && !utf8.RuneStart(name[start]) {
			start++
		}
		name = name[start:]
	}
	return name
}
