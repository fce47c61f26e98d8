// Package policy defines the sandbox hardening policy: the execution
// identity, resource ceilings, filesystem layout, toolchain denylist and
// the hardened compiler profile. All values are fixed per instance at
// provisioning time and never mutated afterwards.
package policy

import (
	"bufio"
	"os"
	"os/user"
	"strconv"
	"strings"

	"execbox/internal/sandbox/spec"
	appErr "execbox/pkg/errors"
)

// DefaultIdentityName is the account untrusted code runs under.
const DefaultIdentityName = "coderunner"

// ExecutionIdentity is the single unprivileged account of an instance.
// It is never the superuser and has no escalation path.
type ExecutionIdentity struct {
	Username string
	UID      uint32
	GID      uint32
	HomeDir  string
}

// LookupIdentity resolves and validates the execution identity.
// A failure here is a provisioning failure: the instance must not be
// marked ready and must never fall back to uid 0.
func LookupIdentity(username string) (ExecutionIdentity, error) {
	if username == "" {
		username = DefaultIdentityName
	}
	u, err := user.Lookup(username)
	if err != nil {
		return ExecutionIdentity{}, appErr.Wrapf(err, appErr.IdentityLookupFailed, "lookup user %q failed", username)
	}
	uid, err := strconv.ParseUint(u.Uid, 10, 32)
	if err != nil {
		return ExecutionIdentity{}, appErr.Wrapf(err, appErr.IdentityLookupFailed, "parse uid failed")
	}
	gid, err := strconv.ParseUint(u.Gid, 10, 32)
	if err != nil {
		return ExecutionIdentity{}, appErr.Wrapf(err, appErr.IdentityLookupFailed, "parse gid failed")
	}

	identity := ExecutionIdentity{
		Username: u.Username,
		UID:      uint32(uid),
		GID:      uint32(gid),
		HomeDir:  u.HomeDir,
	}
	if err := identity.Validate(); err != nil {
		return ExecutionIdentity{}, err
	}
	if err := validateGroups(u); err != nil {
		return ExecutionIdentity{}, err
	}
	return identity, nil
}

// Validate rejects privileged identities.
func (id ExecutionIdentity) Validate() error {
	if id.UID == 0 {
		return appErr.New(appErr.IdentityPrivileged).WithDetail("uid", id.UID)
	}
	if id.GID == 0 {
		return appErr.New(appErr.IdentityGroupElevated).WithDetail("gid", id.GID)
	}
	return nil
}

// Credential converts the identity for the init helper.
func (id ExecutionIdentity) Credential() *spec.Credential {
	return &spec.Credential{UID: id.UID, GID: id.GID}
}

func validateGroups(u *user.User) error {
	groupIDs, err := u.GroupIds()
	if err != nil {
		// Supplementary group resolution is unavailable on static
		// builds without cgo; the primary gid check above still holds.
		return nil
	}
	for _, gidStr := range groupIDs {
		if gidStr == "0" {
			return appErr.New(appErr.IdentityGroupElevated).WithDetail("group", gidStr)
		}
	}
	return nil
}

// VerifyLoginDisabled checks that the identity's password is locked so
// it cannot authenticate interactively or via network login. Reading
// the shadow file requires privilege; an unreadable file is treated as
// unverifiable rather than as a failure.
func VerifyLoginDisabled(shadowPath, username string) error {
	if shadowPath == "" {
		shadowPath = "/etc/shadow"
	}
	file, err := os.Open(shadowPath)
	if err != nil {
		if os.IsPermission(err) || os.IsNotExist(err) {
			return nil
		}
		return appErr.Wrapf(err, appErr.IdentityLookupFailed, "open shadow file failed")
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		fields := strings.Split(scanner.Text(), ":")
		if len(fields) < 2 || fields[0] != username {
			continue
		}
		if loginDisabled(fields[1]) {
			return nil
		}
		return appErr.New(appErr.IdentityLoginEnabled).WithDetail("user", username)
	}
	if err := scanner.Err(); err != nil {
		return appErr.Wrapf(err, appErr.IdentityLookupFailed, "read shadow file failed")
	}
	return appErr.Newf(appErr.IdentityLookupFailed, "user %q not present in shadow file", username)
}

// loginDisabled reports whether a shadow password field blocks
// authentication. An empty field permits passwordless login, so only
// the locked ("!") and disabled ("*") markers count.
func loginDisabled(hash string) bool {
	return strings.HasPrefix(hash, "!") || strings.HasPrefix(hash, "*")
}
