package workspace

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	domain "github.com/bryanwahyu/sonarscan-api/internal/domain/scans"
)

// Manager prepares one scratch directory per scan request.
type Manager struct {
	Root            string // parent of git_project_* and code_project_* directories
	UploadsRoot     string // parent of <file>_<id>_scan directories
	DefaultExt      string // extension of the inline file when no filename is given
	Git             string // git executable
	MaxArchiveBytes int64  // cap on total extracted bytes, 0 means unlimited
}

func NewManager(root, uploadsRoot, defaultExt, git string, maxArchiveBytes int64) *Manager {
	if git == "" {
		git = "git"
	}
	if defaultExt == "" {
		defaultExt = "py"
	}
	return &Manager{
		Root:            root,
		UploadsRoot:     uploadsRoot,
		DefaultExt:      strings.TrimPrefix(defaultExt, "."),
		Git:             git,
		MaxArchiveBytes: maxArchiveBytes,
	}
}

// Prepare materializes req on disk. When a directory was created the returned
// workspace is non-nil, even together with an error, so the caller can release it.
func (m *Manager) Prepare(ctx context.Context, key string, req domain.ScanRequest) (*domain.Workspace, error) {
	mode, err := req.Mode()
	if err != nil {
		return nil, err
	}
	switch mode {
	case domain.ModeGit:
		return m.prepareGit(ctx, key, req.Remote.URL)
	case domain.ModeCode:
		return m.prepareCode(key, req.Inline)
	default:
		return m.prepareUpload(req.Archive)
	}
}

func (m *Manager) prepareGit(ctx context.Context, key, url string) (*domain.Workspace, error) {
	dir := filepath.Join(m.Root, "git_project_"+key)
	ws, err := m.freshDir(dir, domain.ModeGit)
	if err != nil {
		return ws, err
	}

	cmd := exec.CommandContext(ctx, m.Git, "clone", "--depth", "1", "--", url, dir)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return ws, domain.CloneFailed(stdout.String(), stderr.String(), fmt.Errorf("git clone: %w", err))
	}
	return ws, nil
}

func (m *Manager) prepareCode(key string, src *domain.InlineSource) (*domain.Workspace, error) {
	name := fmt.Sprintf("%s_source.%s", key, m.DefaultExt)
	if src.Filename != "" {
		name = filepath.Base(filepath.Clean(src.Filename))
		if name == "." || name == string(filepath.Separator) || name == ".." {
			return nil, domain.Validation("Invalid filename: " + src.Filename)
		}
	}

	dir := filepath.Join(m.Root, "code_project_"+key)
	ws, err := m.freshDir(dir, domain.ModeCode)
	if err != nil {
		return ws, err
	}
	ws.SourceFile = name
	if err := os.WriteFile(filepath.Join(dir, name), []byte(src.Code), 0o644); err != nil {
		return ws, fmt.Errorf("write source file: %w", err)
	}
	return ws, nil
}

func (m *Manager) prepareUpload(up *domain.ArchiveUpload) (*domain.Workspace, error) {
	if len(up.Parts) > 1 {
		return nil, domain.ErrTooManyFiles
	}
	if len(up.Parts) == 0 || up.Parts[0].Filename == "" || up.Parts[0].Open == nil {
		return nil, domain.ErrNoFileSelected
	}
	part := up.Parts[0]
	filename := filepath.Base(filepath.Clean(part.Filename))
	if filename == "." || filename == ".." || filename == string(filepath.Separator) {
		return nil, domain.ErrNoFileSelected
	}

	dir := filepath.Join(m.UploadsRoot, fmt.Sprintf("%s_%s_scan", filename, uuid.NewString()[:8]))
	ws, err := m.freshDir(dir, domain.ModeUpload)
	if err != nil {
		return ws, err
	}

	archivePath := filepath.Join(dir, filename)
	if err := savePart(part, archivePath); err != nil {
		return ws, fmt.Errorf("save upload: %w", err)
	}
	if err := extractZip(archivePath, dir, m.MaxArchiveBytes); err != nil {
		return ws, domain.ExtractFailed(err)
	}
	return ws, nil
}

// freshDir replaces any existing directory at path; last write wins.
func (m *Manager) freshDir(path string, mode domain.Mode) (*domain.Workspace, error) {
	if err := os.RemoveAll(path); err != nil {
		return nil, fmt.Errorf("remove stale workspace: %w", err)
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("create workspace: %w", err)
	}
	return domain.NewWorkspace(path, mode, func() error { return os.RemoveAll(path) }), nil
}

func savePart(part domain.FilePart, dst string) error {
	src, err := part.Open()
	if err != nil {
		return err
	}
	defer src.Close()

	f, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, src); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

var errArchiveTooLarge = errors.New("archive exceeds extraction limit")

func extractZip(archivePath, dest string, limit int64) error {
	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		return fmt.Errorf("open zip: %w", err)
	}
	defer zr.Close()

	root, err := filepath.Abs(dest)
	if err != nil {
		return err
	}
	var written int64
	for _, f := range zr.File {
		target := filepath.Join(root, f.Name)
		if target != root && !strings.HasPrefix(target, root+string(filepath.Separator)) {
			return fmt.Errorf("illegal path in archive: %s", f.Name)
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
			continue
		}
		if !f.Mode().IsRegular() {
			continue // symlinks and devices are skipped
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		n, err := extractFile(f, target, remaining(limit, written))
		written += n
		if err != nil {
			return fmt.Errorf("extract %s: %w", f.Name, err)
		}
	}
	return nil
}

func remaining(limit, written int64) int64 {
	if limit <= 0 {
		return -1
	}
	return limit - written
}

func extractFile(f *zip.File, target string, budget int64) (int64, error) {
	rc, err := f.Open()
	if err != nil {
		return 0, err
	}
	defer rc.Close()

	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return 0, err
	}
	defer out.Close()

	var src io.Reader = rc
	if budget >= 0 {
		src = io.LimitReader(rc, budget+1)
	}
	n, err := io.Copy(out, src)
	if err != nil {
		return n, err
	}
	if budget >= 0 && n > budget {
		return n, errArchiveTooLarge
	}
	return n, nil
}
