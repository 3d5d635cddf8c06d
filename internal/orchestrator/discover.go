package orchestrator

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

// editedName matches outputs of earlier runs.
var editedName = regexp.MustCompile(`(?i)\.edited(?:\.\d+)?\.pdf$`)

// IsEditedOutput reports whether name looks like a file this tool wrote.
func IsEditedOutput(name string) bool { return editedName.MatchString(name) }

// Discover returns the PDFs to process under root, sorted. A file root is
// returned as is. Earlier outputs are skipped.
func Discover(root string, recursive bool) ([]string, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("input path: %w", err)
	}
	if !info.IsDir() {
		return []string{root}, nil
	}

	var files []string
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && !recursive {
				return filepath.SkipDir
			}
			return nil
		}
		name := d.Name()
		if !strings.EqualFold(filepath.Ext(name), ".pdf") || IsEditedOutput(name) {
			return nil
		}
		files = append(files, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", root, err)
	}
	sort.Strings(files)
	return files, nil
}
