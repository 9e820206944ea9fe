package ingest

import (
	"fmt"
	"mime"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// ReadUploadDir collects the regular files of a hand-in directory, in name
// order. Hidden files and subdirectories are skipped.
func ReadUploadDir(dir string) ([]Upload, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []Upload
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", e.Name(), err)
		}
		out = append(out, Upload{
			Name:     e.Name(),
			MIMEType: mime.TypeByExtension(path.Ext(e.Name())),
			Data:     data,
		})
	}
	return out, nil
}
