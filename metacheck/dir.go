package metacheck

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// FileReport is the Check result for one file.
type FileReport struct {
	Path   string `json:"path"`
	Report Report `json:"report"`
}

// ValidateDir checks every .html file below dir.
func ValidateDir(dir string) ([]FileReport, error) {
	var out []FileReport
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(p), ".html") {
			return nil
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return fmt.Errorf("read %s: %w", p, err)
		}
		report, err := Check(string(data), Expect{})
		if err != nil {
			return fmt.Errorf("check %s: %w", p, err)
		}
		rel, _ := filepath.Rel(dir, p)
		out = append(out, FileReport{Path: filepath.ToSlash(rel), Report: report})
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}
