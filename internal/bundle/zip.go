package bundle

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// buildZip packs each input into a zip archive under its base name.
// Duplicate base names get the same append-1 treatment as filesystem
// collisions so no entry silently shadows another.
func buildZip(inputs []string, out string) ([]string, error) {
	f, err := os.Create(out)
	if err != nil {
		return nil, &Error{Code: CodeBuildFailed, Mode: ModeZip, Path: out, Message: "create archive", Err: err}
	}
	defer f.Close()

	zw := zip.NewWriter(f)
	used := make(map[string]int)

	for _, in := range inputs {
		name := uniqueEntryName(used, filepath.Base(in))
		if err := addZipEntry(zw, in, name); err != nil {
			zw.Close()
			return nil, err
		}
	}

	if err := zw.Close(); err != nil {
		return nil, &Error{Code: CodeBuildFailed, Mode: ModeZip, Path: out, Message: "finalize archive", Err: err}
	}
	if err := f.Sync(); err != nil {
		return nil, &Error{Code: CodeBuildFailed, Mode: ModeZip, Path: out, Message: "sync archive", Err: err}
	}
	return nil, nil
}

func addZipEntry(zw *zip.Writer, path, name string) error {
	in, err := os.Open(path)
	if err != nil {
		return &Error{Code: CodeMissingInput, Mode: ModeZip, Path: path, Message: "open input", Err: err}
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return &Error{Code: CodeBuildFailed, Mode: ModeZip, Path: path, Message: "stat input", Err: err}
	}

	hdr, err := zip.FileInfoHeader(info)
	if err != nil {
		return &Error{Code: CodeBuildFailed, Mode: ModeZip, Path: path, Message: "build entry header", Err: err}
	}
	hdr.Name = name
	hdr.Method = zip.Deflate

	w, err := zw.CreateHeader(hdr)
	if err != nil {
		return &Error{Code: CodeBuildFailed, Mode: ModeZip, Path: path, Message: "create entry", Err: err}
	}
	if _, err := io.Copy(w, in); err != nil {
		return &Error{Code: CodeBuildFailed, Mode: ModeZip, Path: path, Message: "write entry", Err: err}
	}
	return nil
}

// uniqueEntryName disambiguates repeated base names inside one archive.
func uniqueEntryName(used map[string]int, base string) string {
	n, seen := used[base]
	used[base] = n + 1
	if !seen {
		return base
	}
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	return fmt.Sprintf("%s-%d%s", stem, n, ext)
}
