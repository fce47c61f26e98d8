package policy

import (
	"os"
	"path/filepath"
	"syscall"

	appErr "execbox/pkg/errors"
)

// WorkDirMode restricts the working directory to the owner plus
// group read/execute. Other identities on the host get nothing, which
// blocks cross-submission reads in pooled deployments.
const WorkDirMode os.FileMode = 0750

// WorkingDirectory is the only writable path exposed to the execution
// identity. All submission artifacts live here and nowhere else.
type WorkingDirectory struct {
	Path  string
	Owner ExecutionIdentity
}

// NewWorkingDirectory binds a path to its owning identity.
func NewWorkingDirectory(path string, owner ExecutionIdentity) WorkingDirectory {
	return WorkingDirectory{Path: path, Owner: owner}
}

// Provision creates the directory with restricted mode and hands
// ownership to the execution identity. Chown requires privilege; when
// the process already runs as the execution identity the chown is a
// no-op and ownership is verified instead.
func (w WorkingDirectory) Provision() error {
	if w.Path == "" {
		return appErr.ValidationError("path", "required")
	}
	if err := os.MkdirAll(w.Path, WorkDirMode); err != nil {
		return appErr.Wrapf(err, appErr.WorkDirCreateFailed, "create working directory failed")
	}
	// MkdirAll mode is masked by umask; force the policy mode.
	if err := os.Chmod(w.Path, WorkDirMode); err != nil {
		return appErr.Wrapf(err, appErr.WorkDirCreateFailed, "chmod working directory failed")
	}
	if err := os.Chown(w.Path, int(w.Owner.UID), int(w.Owner.GID)); err != nil {
		if !os.IsPermission(err) {
			return appErr.Wrapf(err, appErr.WorkDirCreateFailed, "chown working directory failed")
		}
	}
	return w.Verify()
}

// Verify checks owner and mode without mutating anything.
func (w WorkingDirectory) Verify() error {
	info, err := os.Stat(w.Path)
	if err != nil {
		return appErr.Wrapf(err, appErr.WorkDirCreateFailed, "stat working directory failed")
	}
	if !info.IsDir() {
		return appErr.New(appErr.WorkDirCreateFailed).WithMessage("working directory path is not a directory")
	}
	if perm := info.Mode().Perm(); perm&0007 != 0 {
		return appErr.New(appErr.WorkDirBadMode).WithDetail("mode", perm.String())
	}
	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return nil
	}
	if stat.Uid != w.Owner.UID && stat.Uid != uint32(os.Getuid()) {
		return appErr.New(appErr.WorkDirBadOwner).WithDetail("uid", stat.Uid)
	}
	return nil
}

// Reset empties the directory before the next submission. Nothing from
// a prior run may remain visible; reuse of the instance requires this
// to complete first.
func (w WorkingDirectory) Reset() error {
	entries, err := os.ReadDir(w.Path)
	if err != nil {
		return appErr.Wrapf(err, appErr.WorkDirResetFailed, "list working directory failed")
	}
	for _, entry := range entries {
		if err := os.RemoveAll(filepath.Join(w.Path, entry.Name())); err != nil {
			return appErr.Wrapf(err, appErr.WorkDirResetFailed, "remove stale artifact failed")
		}
	}
	return nil
}

// Destroy removes the directory with the instance.
func (w WorkingDirectory) Destroy() error {
	if err := os.RemoveAll(w.Path); err != nil {
		return appErr.Wrapf(err, appErr.WorkDirResetFailed, "remove working directory failed")
	}
	return nil
}
