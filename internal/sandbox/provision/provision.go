// Package provision assembles ready instances from the hardening
// policy: identity, ceilings, working directory, denylist and the
// compile profile, in that order. Any failure is fatal for the
// instance; there is no partial provisioning.
package provision

import (
	"context"
	"fmt"
	"path/filepath"

	"go.uber.org/zap"

	"execbox/internal/sandbox/engine"
	"execbox/internal/sandbox/policy"
	"execbox/internal/sandbox/runner"
	"execbox/internal/sandbox/supervisor"
	appErr "execbox/pkg/errors"
	"execbox/pkg/utils/logger"
)

// Config describes how to provision the instance pool.
type Config struct {
	IdentityName  string                `yaml:"identityName"`
	WorkRoot      string                `yaml:"workRoot"`
	InstanceCount int                   `yaml:"instanceCount"`
	EnforceDeny   bool                  `yaml:"enforceDenylist"`
	DenylistPaths []string              `yaml:"denylistPaths"`
	Compile       policy.CompileProfile `yaml:"compile"`
	Engine        engine.Config         `yaml:"engine"`
	Env           []string              `yaml:"env"`
}

// Instance is one provisioned execution slot.
type Instance struct {
	ID         string
	Supervisor *supervisor.Supervisor
	WorkDir    policy.WorkingDirectory
}

// Provision builds the instance pool. The identity and denylist checks
// run once; working directories and runners are per instance.
func Provision(ctx context.Context, cfg Config) ([]*Instance, error) {
	if cfg.WorkRoot == "" {
		return nil, appErr.ValidationError("work_root", "required")
	}
	if cfg.InstanceCount <= 0 {
		cfg.InstanceCount = 1
	}

	identity, err := policy.LookupIdentity(cfg.IdentityName)
	if err != nil {
		return nil, err
	}
	if err := policy.VerifyLoginDisabled("", identity.Username); err != nil {
		return nil, err
	}
	logger.Info(ctx, "execution identity verified",
		zap.String("user", identity.Username),
		zap.Uint32("uid", identity.UID),
	)

	denylist := policy.NewDenylist(cfg.DenylistPaths)
	if cfg.EnforceDeny {
		if err := denylist.Enforce(); err != nil {
			return nil, err
		}
	}
	if err := denylist.Audit(); err != nil {
		return nil, err
	}

	limits := policy.DefaultLimitTable()
	compile := cfg.Compile
	if compile.Compiler == "" {
		compile = policy.DefaultCompileProfile()
	}
	if err := compile.Validate(); err != nil {
		return nil, err
	}

	eng, err := engine.NewEngine(cfg.Engine)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.SandboxSystemError, "init engine failed")
	}

	instances := make([]*Instance, 0, cfg.InstanceCount)
	for i := 0; i < cfg.InstanceCount; i++ {
		id := fmt.Sprintf("instance-%d", i)
		workDir := policy.NewWorkingDirectory(filepath.Join(cfg.WorkRoot, id), identity)
		if err := workDir.Provision(); err != nil {
			return nil, err
		}

		allowlist := policy.NewExecAllowlist([]string{compile.Compiler}, workDir.Path)
		r, err := runner.NewRunner(runner.Options{
			Engine:         eng,
			Identity:       identity,
			Limits:         limits,
			CompileProfile: compile,
			Allowlist:      allowlist,
			Env:            cfg.Env,
		})
		if err != nil {
			return nil, err
		}
		sup, err := supervisor.New(r, workDir)
		if err != nil {
			return nil, err
		}
		sup.SetDenylist(denylist)
		instances = append(instances, &Instance{ID: id, Supervisor: sup, WorkDir: workDir})
	}
	logger.Info(ctx, "instance pool provisioned", zap.Int("count", len(instances)))
	return instances, nil
}
