package service

import (
	"archive/tar"
	"context"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zstd"

	"execbox/internal/sandbox/workspace"
	appErr "execbox/pkg/errors"
)

// maxArchivedFileBytes caps how much of any single artifact is kept.
const maxArchivedFileBytes = 1 * 1024 * 1024

// ArtifactArchiver snapshots submission artifacts into zstd-compressed
// tarballs before the working directory is torn down.
type ArtifactArchiver struct {
	dir string
}

// NewArtifactArchiver stores archives under dir, creating it if needed.
func NewArtifactArchiver(dir string) (*ArtifactArchiver, error) {
	if dir == "" {
		return nil, appErr.ValidationError("archive_dir", "required")
	}
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, appErr.Wrapf(err, appErr.CollectFailed, "create archive dir failed")
	}
	return &ArtifactArchiver{dir: dir}, nil
}

// CollectArtifacts implements the supervisor collection hook.
func (a *ArtifactArchiver) CollectArtifacts(ctx context.Context, submissionID string, layout workspace.Layout) error {
	_, err := a.Archive(submissionID, layout)
	return err
}

// Archive writes <submissionID>.tar.zst containing the compile and
// runtime logs that exist in the layout. Missing files are skipped;
// the run may have failed before producing them.
func (a *ArtifactArchiver) Archive(submissionID string, layout workspace.Layout) (string, error) {
	outPath := filepath.Join(a.dir, submissionID+".tar.zst")
	out, err := os.OpenFile(outPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0640)
	if err != nil {
		return "", appErr.Wrapf(err, appErr.CollectFailed, "create archive failed")
	}
	defer out.Close()

	zw, err := zstd.NewWriter(out)
	if err != nil {
		return "", appErr.Wrapf(err, appErr.CollectFailed, "zstd writer failed")
	}
	tw := tar.NewWriter(zw)

	candidates := []string{
		layout.CompileLogPath,
		layout.StderrPath,
		layout.StdoutPath,
		layout.SourcePath,
	}
	for _, path := range candidates {
		if err := addFile(tw, path); err != nil {
			return "", err
		}
	}

	if err := tw.Close(); err != nil {
		return "", appErr.Wrapf(err, appErr.CollectFailed, "finalize tar failed")
	}
	if err := zw.Close(); err != nil {
		return "", appErr.Wrapf(err, appErr.CollectFailed, "finalize zstd failed")
	}
	return outPath, nil
}

func addFile(tw *tar.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return appErr.Wrapf(err, appErr.CollectFailed, "open artifact failed")
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return appErr.Wrapf(err, appErr.CollectFailed, "stat artifact failed")
	}
	size := info.Size()
	if size > maxArchivedFileBytes {
		size = maxArchivedFileBytes
	}
	hdr := &tar.Header{
		Name:    filepath.Base(path),
		Mode:    0640,
		Size:    size,
		ModTime: time.Now(),
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return appErr.Wrapf(err, appErr.CollectFailed, "write tar header failed")
	}
	if _, err := io.CopyN(tw, f, size); err != nil && err != io.EOF {
		return appErr.Wrapf(err, appErr.CollectFailed, "write artifact failed")
	}
	return nil
}
