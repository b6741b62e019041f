package export

import (
	"archive/zip"
	"io"
	"os"
	"path/filepath"
	"sort"
)

// ZipFiles bundles files (archive name -> path on disk) in name order.
func ZipFiles(zipPath string, files map[string]string) error {
	out, err := os.Create(zipPath)
	if err != nil {
		return err
	}
	defer out.Close()
	zw := zip.NewWriter(out)
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		w, err := zw.Create(name)
		if err != nil {
			return err
		}
		f, err := os.Open(files[name])
		if err != nil {
			return err
		}
		if _, err := io.Copy(w, f); err != nil {
			f.Close()
			return err
		}
		f.Close()
	}
	return zw.Close()
}

func EnsureDir(dir string) error    { return os.MkdirAll(dir, 0o755) }
func Join(base, name string) string { return filepath.Join(base, name) }

func WriteFile(path string, b []byte) error { return os.WriteFile(path, b, 0o644) }
