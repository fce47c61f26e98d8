package policy

import (
	"os"
	"path/filepath"
	"strings"

	appErr "execbox/pkg/errors"
)

// DefaultDenylist lists binaries that must be absent from the instance:
// network clients (exfiltration, command-and-control) and debuggers or
// tracers (sandbox introspection, ptrace tricks against the process
// ceiling). Absence, not permission bits, is the enforcement mechanism.
func DefaultDenylist() []string {
	return []string{
		"/usr/bin/wget",
		"/usr/bin/curl",
		"/usr/bin/nc",
		"/usr/bin/netcat",
		"/usr/bin/ncat",
		"/usr/bin/ssh",
		"/usr/bin/scp",
		"/usr/bin/ftp",
		"/usr/bin/tcpdump",
		"/usr/bin/gdb",
		"/usr/bin/gdbserver",
		"/usr/bin/objdump",
		"/usr/bin/strace",
		"/usr/bin/ltrace",
	}
}

// Denylist is the fixed set of binary paths removed at build time.
type Denylist struct {
	Paths []string
}

// NewDenylist returns a denylist, defaulting to the standard set.
func NewDenylist(paths []string) Denylist {
	if len(paths) == 0 {
		paths = DefaultDenylist()
	}
	return Denylist{Paths: paths}
}

// Enforce deletes every listed binary. Run with privilege at image or
// instance build time; already-absent paths are fine.
func (d Denylist) Enforce() error {
	for _, path := range d.Paths {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return appErr.Wrapf(err, appErr.DenylistRemoveFailed, "remove %s failed", path)
		}
	}
	return nil
}

// Audit verifies every listed binary is absent. Run before marking the
// instance ready and again after each submission: a submission must not
// be able to reintroduce a denied tool.
func (d Denylist) Audit() error {
	for _, path := range d.Paths {
		if _, err := os.Lstat(path); err == nil {
			return appErr.New(appErr.DenylistBinaryPresent).WithDetail("path", path)
		} else if !os.IsNotExist(err) {
			return appErr.Wrapf(err, appErr.InternalError, "stat %s failed", path)
		}
	}
	return nil
}

// ExecAllowlist is the invocation-time counterpart of the denylist: a
// closed set of executables the engine will start. This covers what
// removal alone cannot, such as tools a submission compiles for itself
// and then tries to have the pipeline execute.
type ExecAllowlist struct {
	allowed map[string]struct{}
	workDir string
}

// NewExecAllowlist permits the given binaries plus anything inside the
// instance working directory (the compiled submission itself).
func NewExecAllowlist(binaries []string, workDir string) ExecAllowlist {
	allowed := make(map[string]struct{}, len(binaries))
	for _, b := range binaries {
		if b == "" {
			continue
		}
		allowed[filepath.Clean(b)] = struct{}{}
	}
	return ExecAllowlist{allowed: allowed, workDir: filepath.Clean(workDir)}
}

// Permits reports whether path may be executed.
func (a ExecAllowlist) Permits(path string) bool {
	clean := filepath.Clean(path)
	if _, ok := a.allowed[clean]; ok {
		return true
	}
	if a.workDir == "" || a.workDir == "." {
		return false
	}
	rel, err := filepath.Rel(a.workDir, clean)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(os.PathSeparator))
}

// Check returns a policy error when path is not permitted.
func (a ExecAllowlist) Check(path string) error {
	if !a.Permits(path) {
		return appErr.New(appErr.ExecNotPermitted).WithDetail("path", path)
	}
	return nil
}

// Binaries returns the explicit allowlist entries.
func (a ExecAllowlist) Binaries() []string {
	out := make([]string, 0, len(a.allowed))
	for b := range a.allowed {
		out = append(out, b)
	}
	return out
}
