package policy_test

import (
	"os"
	"path/filepath"
	"testing"

	"execbox/internal/sandbox/policy"
	appErr "execbox/pkg/errors"
)

func currentIdentity() policy.ExecutionIdentity {
	return policy.ExecutionIdentity{
		Username: "test",
		UID:      uint32(os.Getuid()),
		GID:      uint32(os.Getgid()),
	}
}

func TestWorkingDirectoryProvision(t *testing.T) {
	root := t.TempDir()
	workDir := policy.NewWorkingDirectory(filepath.Join(root, "instance-0"), currentIdentity())

	if err := workDir.Provision(); err != nil {
		t.Fatalf("provision: %v", err)
	}

	info, err := os.Stat(workDir.Path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if perm := info.Mode().Perm(); perm != policy.WorkDirMode {
		t.Errorf("mode = %v, want %v", perm, policy.WorkDirMode)
	}

	// Provisioning twice must not fail.
	if err := workDir.Provision(); err != nil {
		t.Fatalf("re-provision: %v", err)
	}
}

func TestWorkingDirectoryVerifyRejectsWorldAccess(t *testing.T) {
	root := t.TempDir()
	workDir := policy.NewWorkingDirectory(filepath.Join(root, "instance-0"), currentIdentity())
	if err := workDir.Provision(); err != nil {
		t.Fatalf("provision: %v", err)
	}

	if err := os.Chmod(workDir.Path, 0757); err != nil {
		t.Fatalf("chmod: %v", err)
	}
	err := workDir.Verify()
	if err == nil {
		t.Fatal("world-accessible directory passed verify")
	}
	if !appErr.Is(err, appErr.WorkDirBadMode) {
		t.Errorf("unexpected code: %v", err)
	}
}

func TestWorkingDirectoryReset(t *testing.T) {
	root := t.TempDir()
	workDir := policy.NewWorkingDirectory(filepath.Join(root, "instance-0"), currentIdentity())
	if err := workDir.Provision(); err != nil {
		t.Fatalf("provision: %v", err)
	}

	for _, name := range []string{"main.cpp", "program", "output.txt"} {
		if err := os.WriteFile(filepath.Join(workDir.Path, name), []byte("x"), 0644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	if err := os.MkdirAll(filepath.Join(workDir.Path, "nested", "deep"), 0755); err != nil {
		t.Fatalf("mkdir nested: %v", err)
	}

	if err := workDir.Reset(); err != nil {
		t.Fatalf("reset: %v", err)
	}

	entries, err := os.ReadDir(workDir.Path)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("directory not empty after reset: %d entries", len(entries))
	}

	// Resetting an empty directory is a no-op.
	if err := workDir.Reset(); err != nil {
		t.Fatalf("reset empty: %v", err)
	}
}

func TestWorkingDirectoryDestroy(t *testing.T) {
	root := t.TempDir()
	workDir := policy.NewWorkingDirectory(filepath.Join(root, "instance-0"), currentIdentity())
	if err := workDir.Provision(); err != nil {
		t.Fatalf("provision: %v", err)
	}
	if err := workDir.Destroy(); err != nil {
		t.Fatalf("destroy: %v", err)
	}
	if _, err := os.Stat(workDir.Path); !os.IsNotExist(err) {
		t.Fatal("directory still present after destroy")
	}
}
