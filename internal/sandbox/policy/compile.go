package policy

import (
	"fmt"
	"path/filepath"

	"github.com/google/shlex"

	appErr "execbox/pkg/errors"
)

// Stack protection levels accepted by the profile.
const (
	StackProtectNone   = "none"
	StackProtectBasic  = "basic"
	StackProtectStrong = "strong"
	StackProtectAll    = "all"
)

// CompileProfile is the fixed hardening flag set applied to every
// compile invocation. It is instance configuration, never overridable
// per submission; the wrapper built from it is the only compiler entry
// point the execution identity can reach.
type CompileProfile struct {
	Compiler        string `yaml:"compiler"`
	StackProtection string `yaml:"stackProtection"`
	FortifyLevel    int    `yaml:"fortifyLevel"`
	PIEEnabled      bool   `yaml:"pieEnabled"`
	RelroNowEnabled bool   `yaml:"relroNowEnabled"`
	// BaseFlags are instance-level language/diagnostic flags such as
	// "-std=c++17 -O2 -Wall", parsed shell-style.
	BaseFlags string `yaml:"baseFlags"`
}

// DefaultCompileProfile mirrors the hardened g++ wrapper: strong stack
// protector, fortified libc calls, PIE, and immediate read-only
// relocation binding.
func DefaultCompileProfile() CompileProfile {
	return CompileProfile{
		Compiler:        "/usr/bin/g++",
		StackProtection: StackProtectStrong,
		FortifyLevel:    2,
		PIEEnabled:      true,
		RelroNowEnabled: true,
		BaseFlags:       "-std=c++17 -O2 -Wall",
	}
}

// Validate rejects unusable profiles.
func (p CompileProfile) Validate() error {
	if p.Compiler == "" {
		return appErr.New(appErr.CompilerUnavailable).WithMessage("compiler path is empty")
	}
	switch p.StackProtection {
	case StackProtectNone, StackProtectBasic, StackProtectStrong, StackProtectAll:
	default:
		return appErr.Newf(appErr.ValidationFailed, "unknown stack protection level: %s", p.StackProtection)
	}
	if p.FortifyLevel < 0 || p.FortifyLevel > 3 {
		return appErr.Newf(appErr.ValidationFailed, "fortify level out of range: %d", p.FortifyLevel)
	}
	if _, err := shlex.Split(p.BaseFlags); err != nil {
		return appErr.Wrapf(err, appErr.ValidationFailed, "parse base flags failed")
	}
	return nil
}

// HardeningFlags returns the compile-time hardening flags.
func (p CompileProfile) HardeningFlags() []string {
	var flags []string
	switch p.StackProtection {
	case StackProtectBasic:
		flags = append(flags, "-fstack-protector")
	case StackProtectStrong:
		flags = append(flags, "-fstack-protector-strong")
	case StackProtectAll:
		flags = append(flags, "-fstack-protector-all")
	}
	if p.FortifyLevel > 0 {
		flags = append(flags, fmt.Sprintf("-D_FORTIFY_SOURCE=%d", p.FortifyLevel))
	}
	if p.PIEEnabled {
		flags = append(flags, "-fPIE", "-pie")
	}
	return flags
}

// LinkerFlags returns the link-time hardening flags.
func (p CompileProfile) LinkerFlags() []string {
	var flags []string
	if p.RelroNowEnabled {
		flags = append(flags, "-Wl,-z,relro", "-Wl,-z,now")
	}
	return flags
}

// Command assembles the full compiler invocation for the given source
// files. The flag set is fixed: nothing the submitter controls is
// spliced in besides the source paths themselves, which must already
// live inside the working directory.
func (p CompileProfile) Command(sourcePaths []string, outputPath string) ([]string, error) {
	if len(sourcePaths) == 0 {
		return nil, appErr.ValidationError("source_paths", "required")
	}
	if outputPath == "" {
		return nil, appErr.ValidationError("output_path", "required")
	}
	base, err := shlex.Split(p.BaseFlags)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.ValidationFailed, "parse base flags failed")
	}

	cmd := make([]string, 0, len(base)+len(sourcePaths)+10)
	cmd = append(cmd, p.Compiler)
	cmd = append(cmd, base...)
	cmd = append(cmd, p.HardeningFlags()...)
	cmd = append(cmd, p.LinkerFlags()...)
	cmd = append(cmd, "-o", outputPath)
	for _, src := range sourcePaths {
		cmd = append(cmd, filepath.Clean(src))
	}
	return cmd, nil
}
