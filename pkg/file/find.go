package file

import (
	"os"
	"path/filepath"
	"strings"
)

// FindWithExt walks dir recursively and returns all regular files whose
// extension matches ext (case-insensitive, with or without leading dot).
func FindWithExt(dir, ext string) ([]string, error) {
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	ext = strings.ToLower(ext)

	var matches []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo,
		err error) error {
		if err != nil {
			return err
		}

		if !info.IsDir() && strings.ToLower(filepath.Ext(path)) == ext {
			matches = append(matches, path)
		}
		return nil
	})

	return matches, err
}
