package downloads

import (
	"archive/tar"
	"archive/zip"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/bodgit/sevenzip"
)

// ErrNoMatch is returned when an archive holds no entry accepted by the matcher.
var ErrNoMatch = errors.New("no matching file found in archive")

// ExtractFileFromTarGz copies the first regular entry accepted by match out
// of a .tgz/.tar.gz archive to destPath.
func ExtractFileFromTarGz(archivePath, destPath string, match func(name string) bool) error {
	file, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("failed to open archive: %w", err)
	}
	defer file.Close()

	gz, err := gzip.NewReader(file)
	if err != nil {
		return fmt.Errorf("failed to create gzip reader: %w", err)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		header, err := tr.Next()
		if err == io.EOF {
			return ErrNoMatch
		}
		if err != nil {
			return fmt.Errorf("failed to read tar: %w", err)
		}
		if header.Typeflag != tar.TypeReg || !match(header.Name) {
			continue
		}
		return writeFile(destPath, tr)
	}
}

// ExtractFileFromZip copies the first file entry accepted by match out of a
// zip archive to destPath.
func ExtractFileFromZip(archivePath, destPath string, match func(name string) bool) error {
	reader, err := zip.OpenReader(archivePath)
	if err != nil {
		return fmt.Errorf("failed to open zip archive: %w", err)
	}
	defer reader.Close()

	for _, f := range reader.File {
		if f.FileInfo().IsDir() || !match(f.Name) {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return fmt.Errorf("failed to open %s in archive: %w", f.Name, err)
		}
		err = writeFile(destPath, rc)
		rc.Close()
		return err
	}
	return ErrNoMatch
}

// ExtractFileFrom7z copies the first file entry accepted by match out of a
// 7z archive to destPath.
func ExtractFileFrom7z(archivePath, destPath string, match func(name string) bool) error {
	reader, err := sevenzip.OpenReader(archivePath)
	if err != nil {
		return fmt.Errorf("failed to open 7z archive: %w", err)
	}
	defer reader.Close()

	for _, f := range reader.File {
		if f.FileInfo().IsDir() || !match(f.Name) {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return fmt.Errorf("failed to open %s in archive: %w", f.Name, err)
		}
		err = writeFile(destPath, rc)
		rc.Close()
		return err
	}
	return ErrNoMatch
}

func writeFile(destPath string, r io.Reader) error {
	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	out, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		return fmt.Errorf("failed to extract file: %w", err)
	}
	return out.Close()
}
