package packaging

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"kilometers.ai/appdeploy/internal/application/ports"
	"kilometers.ai/appdeploy/internal/core/deployment"
)

// ChecksumSuffix is appended to an archive path to name its checksum file
const ChecksumSuffix = ".sha256"

// TarGzPackager writes an app directory to a gzip-compressed tarball
type TarGzPackager struct {
	logger ports.LoggingGateway
}

// NewTarGzPackager creates a new tgz packager. logger may be nil.
func NewTarGzPackager(logger ports.LoggingGateway) *TarGzPackager {
	return &TarGzPackager{logger: logger}
}

// Package archives req.SourceDir under req.RootName. When a debug client is
// set it is added as an executable under bin/. The archive is written to a
// temporary file and renamed into place, next to a sha256 checksum file.
func (p *TarGzPackager) Package(ctx context.Context, req deployment.PackageRequest) error {
	info, err := os.Stat(req.SourceDir)
	if err != nil {
		return fmt.Errorf("failed to read source directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("source %s is not a directory", req.SourceDir)
	}
	if req.ArchivePath == "" {
		return fmt.Errorf("archive path cannot be empty")
	}

	if err := os.MkdirAll(filepath.Dir(req.ArchivePath), 0755); err != nil {
		return fmt.Errorf("failed to create package directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(req.ArchivePath), ".package-*")
	if err != nil {
		return fmt.Errorf("failed to create archive: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := tmp.Chmod(0644); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to set archive permissions: %w", err)
	}

	hash := sha256.New()
	if err := p.write(ctx, io.MultiWriter(tmp, hash), req); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close archive: %w", err)
	}

	if err := os.Rename(tmp.Name(), req.ArchivePath); err != nil {
		return fmt.Errorf("failed to move archive into place: %w", err)
	}

	sum := hex.EncodeToString(hash.Sum(nil))
	line := fmt.Sprintf("%s  %s\n", sum, filepath.Base(req.ArchivePath))
	if err := os.WriteFile(req.ArchivePath+ChecksumSuffix, []byte(line), 0644); err != nil {
		return fmt.Errorf("failed to write checksum: %w", err)
	}

	if p.logger != nil {
		p.logger.Log(ports.LogLevelDebug, "Packaged app", map[string]interface{}{
			"archive": req.ArchivePath,
			"sha256":  sum,
		})
	}

	return nil
}

func (p *TarGzPackager) write(ctx context.Context, w io.Writer, req deployment.PackageRequest) error {
	gzWriter := gzip.NewWriter(w)
	tarWriter := tar.NewWriter(gzWriter)

	root := req.RootName
	if root == "" {
		root = filepath.Base(req.SourceDir)
	}

	sourceAbs, _ := filepath.Abs(req.SourceDir)
	archiveAbs, _ := filepath.Abs(req.ArchivePath)
	packageDir := filepath.Dir(archiveAbs)

	err := filepath.Walk(req.SourceDir, func(file string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		// The package directory may sit inside the tree it packages
		abs, _ := filepath.Abs(file)
		if info.IsDir() && abs == packageDir && abs != sourceAbs {
			return filepath.SkipDir
		}
		if !info.IsDir() && filepath.Dir(abs) == packageDir && isPackageArtifact(abs, archiveAbs) {
			return nil
		}

		rel, err := filepath.Rel(req.SourceDir, file)
		if err != nil {
			return err
		}
		name := path.Join(root, filepath.ToSlash(rel))

		return addFile(tarWriter, file, name, info)
	})
	if err != nil {
		return fmt.Errorf("failed to archive %s: %w", req.SourceDir, err)
	}

	if req.DebugClient != "" {
		info, err := os.Stat(req.DebugClient)
		if err != nil {
			return fmt.Errorf("failed to read debug client: %w", err)
		}
		name := path.Join(root, "bin", filepath.Base(req.DebugClient))
		if err := addFile(tarWriter, req.DebugClient, name, executable(info)); err != nil {
			return fmt.Errorf("failed to add debug client: %w", err)
		}
	}

	if err := tarWriter.Close(); err != nil {
		return fmt.Errorf("failed to finish tar stream: %w", err)
	}
	if err := gzWriter.Close(); err != nil {
		return fmt.Errorf("failed to finish gzip stream: %w", err)
	}
	return nil
}

// isPackageArtifact reports whether file is an archive, a checksum or a
// temporary file written by the packager
func isPackageArtifact(file, archive string) bool {
	base := filepath.Base(file)
	switch {
	case file == archive, file == archive+ChecksumSuffix:
		return true
	case strings.HasPrefix(base, ".package-"):
		return true
	case strings.HasSuffix(base, ".tgz"), strings.HasSuffix(base, ".tgz"+ChecksumSuffix):
		return true
	}
	return false
}

func addFile(tw *tar.Writer, file, name string, info os.FileInfo) error {
	if !info.IsDir() && !info.Mode().IsRegular() {
		return nil
	}

	header, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return err
	}
	header.Name = name
	if info.IsDir() {
		header.Name += "/"
	}

	if err := tw.WriteHeader(header); err != nil {
		return err
	}
	if info.IsDir() {
		return nil
	}

	f, err := os.Open(file)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = io.Copy(tw, f)
	return err
}

// Entries lists the names stored in a tgz archive
func Entries(archivePath string) (map[string]os.FileMode, error) {
	f, err := os.Open(archivePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	gzReader, err := gzip.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("failed to create gzip reader: %w", err)
	}
	defer gzReader.Close()

	entries := make(map[string]os.FileMode)
	tarReader := tar.NewReader(gzReader)
	for {
		header, err := tarReader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read tar header: %w", err)
		}
		entries[header.Name] = header.FileInfo().Mode()
	}

	return entries, nil
}

// VerifyChecksum checks an archive against its sha256 checksum file
func VerifyChecksum(archivePath string) error {
	expected, err := os.ReadFile(archivePath + ChecksumSuffix)
	if err != nil {
		return fmt.Errorf("failed to read checksum: %w", err)
	}

	f, err := os.Open(archivePath)
	if err != nil {
		return err
	}
	defer f.Close()

	hash := sha256.New()
	if _, err := io.Copy(hash, f); err != nil {
		return err
	}

	actual := hex.EncodeToString(hash.Sum(nil))
	fields := strings.Fields(string(expected))
	if len(fields) == 0 || fields[0] != actual {
		return fmt.Errorf("checksum mismatch: expected %s, got %s", strings.TrimSpace(string(expected)), actual)
	}

	return nil
}

type executableInfo struct {
	os.FileInfo
}

func (e executableInfo) Mode() os.FileMode {
	return e.FileInfo.Mode() | 0111
}

func executable(info os.FileInfo) os.FileInfo {
	return executableInfo{info}
}
