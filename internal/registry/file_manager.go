package registry

import (
	"os"
)

// FileManager replaces a file atomically: data goes to a sibling temp file
// that is synced, closed and renamed over the target.
type FileManager struct {
	path string
	mode os.FileMode
}

func NewFileManager(path string) *FileManager {
	return &FileManager{path: path, mode: 0o644}
}

func (f *FileManager) Path() string {
	return f.path
}

func (f *FileManager) Save(data []byte) error {
	tmpFile := f.path + ".tmp"
	file, err := os.OpenFile(tmpFile, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, f.mode)
	if err != nil {
		return err
	}

	_, err = file.Write(data)
	if err != nil {
		file.Close()
		os.Remove(tmpFile)
		return err
	}

	if err = file.Sync(); err != nil {
		file.Close()
		os.Remove(tmpFile)
		return err
	}

	if err = file.Close(); err != nil {
		os.Remove(tmpFile)
		return err
	}

	return os.Rename(tmpFile, f.path)
}

// Load returns the file contents; a missing file yields an error matching
// os.ErrNotExist.
func (f *FileManager) Load() ([]byte, error) {
	return os.ReadFile(f.path)
}
