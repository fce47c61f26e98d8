//go:build linux

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/seccomp/libseccomp-golang"
	"golang.org/x/sys/unix"
)

func main() {
	if err := run(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

// run applies the full hardening sequence, then replaces this process
// with the target command. Order matters: ceilings and the credential
// drop must be in place before the first target instruction executes.
func run() error {
	req, err := decodeRequest(os.Stdin)
	if err != nil {
		return err
	}
	if err := validateRequest(req); err != nil {
		return err
	}

	if err := os.Chdir(req.RunSpec.WorkDir); err != nil {
		return fmt.Errorf("chdir workdir: %w", err)
	}

	cmdPath, err := resolveCommand(req.RunSpec)
	if err != nil {
		return err
	}

	if err := applyRlimits(req.RunSpec.Limits, req.RunSpec.WallTimeMs); err != nil {
		return err
	}

	if err := dropCredential(req.RunSpec.Credential); err != nil {
		return err
	}

	if err := redirectIO(req.RunSpec); err != nil {
		return err
	}

	if req.EnableSeccomp && req.RunSpec.SeccompProfile != "" {
		if err := applySeccomp(req.RunSpec.SeccompProfile); err != nil {
			return err
		}
	}

	env := buildEnv(req.RunSpec.Env)
	os.Clearenv()
	for _, kv := range env {
		parts := strings.SplitN(kv, "=", 2)
		if len(parts) != 2 {
			continue
		}
		if err := os.Setenv(parts[0], parts[1]); err != nil {
			return fmt.Errorf("set env: %w", err)
		}
	}

	return unix.Exec(cmdPath, req.RunSpec.Cmd, env)
}

func decodeRequest(r io.Reader) (initRequest, error) {
	dec := json.NewDecoder(r)
	var req initRequest
	if err := dec.Decode(&req); err != nil {
		return initRequest{}, fmt.Errorf("decode request: %w", err)
	}
	return req, nil
}

func validateRequest(req initRequest) error {
	if len(req.RunSpec.Cmd) == 0 {
		return fmt.Errorf("command is required")
	}
	if req.RunSpec.WorkDir == "" {
		return fmt.Errorf("work dir is required")
	}
	return nil
}

// resolveCommand checks the target against the closed executable set.
// Anything inside the working directory is permitted; everything else
// must be named explicitly. The command is always an absolute path, no
// PATH search happens here.
func resolveCommand(rs runSpec) (string, error) {
	cmdPath := rs.Cmd[0]
	if !filepath.IsAbs(cmdPath) {
		cmdPath = filepath.Join(rs.WorkDir, cmdPath)
	}
	cmdPath = filepath.Clean(cmdPath)
	if rel, err := filepath.Rel(rs.WorkDir, cmdPath); err == nil &&
		rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return cmdPath, nil
	}
	for _, allowed := range rs.AllowedExecutables {
		if cmdPath == allowed {
			return cmdPath, nil
		}
	}
	return "", fmt.Errorf("executable not permitted: %s", cmdPath)
}

// applyRlimits installs the ceiling table with soft == hard so the
// target cannot raise its own limits afterwards. Wall time additionally
// maps onto a CPU ceiling as a backstop behind the supervisor's timer.
func applyRlimits(limits []limitEntry, wallTimeMs int64) error {
	for _, l := range limits {
		res, err := rlimitResource(l.Kind)
		if err != nil {
			return err
		}
		if l.Hard == 0 {
			return fmt.Errorf("zero hard limit for %s", l.Kind)
		}
		if err := unix.Setrlimit(res, &unix.Rlimit{Cur: l.Soft, Max: l.Hard}); err != nil {
			return fmt.Errorf("set rlimit %s: %w", l.Kind, err)
		}
	}
	if wallTimeMs > 0 {
		seconds := uint64((wallTimeMs + 999) / 1000)
		if err := unix.Setrlimit(unix.RLIMIT_CPU, &unix.Rlimit{Cur: seconds, Max: seconds + 1}); err != nil {
			return fmt.Errorf("set rlimit cpu: %w", err)
		}
	}
	return nil
}

func rlimitResource(kind string) (int, error) {
	switch kind {
	case "processes":
		return unix.RLIMIT_NPROC, nil
	case "open_files":
		return unix.RLIMIT_NOFILE, nil
	case "file_size":
		return unix.RLIMIT_FSIZE, nil
	default:
		return 0, fmt.Errorf("unknown limit kind: %s", kind)
	}
}

// dropCredential switches to the unprivileged execution identity. When
// the helper already runs as that identity the switch degrades to a
// verification. Running the target as uid 0 is never permitted.
func dropCredential(cred *credential) error {
	if cred == nil {
		if os.Getuid() == 0 {
			return fmt.Errorf("refusing to run target as root")
		}
		return nil
	}
	if cred.UID == 0 {
		return fmt.Errorf("refusing to run target as uid 0")
	}
	if uint32(os.Getuid()) == cred.UID && uint32(os.Getgid()) == cred.GID {
		return nil
	}
	if err := unix.Setgroups([]int{int(cred.GID)}); err != nil {
		return fmt.Errorf("set groups: %w", err)
	}
	if err := unix.Setgid(int(cred.GID)); err != nil {
		return fmt.Errorf("set gid: %w", err)
	}
	if err := unix.Setuid(int(cred.UID)); err != nil {
		return fmt.Errorf("set uid: %w", err)
	}
	if os.Getuid() != int(cred.UID) {
		return fmt.Errorf("credential drop did not take effect")
	}
	return nil
}

func redirectIO(rs runSpec) error {
	stdinPath := rs.StdinPath
	if stdinPath == "" {
		stdinPath = "/dev/null"
	}
	stdoutPath := rs.StdoutPath
	if stdoutPath == "" {
		stdoutPath = "/dev/null"
	}
	stderrPath := rs.StderrPath
	if stderrPath == "" {
		stderrPath = "/dev/null"
	}
	stdinFile, err := os.Open(stdinPath)
	if err != nil {
		return fmt.Errorf("open stdin: %w", err)
	}
	stdoutFile, err := os.OpenFile(stdoutPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("open stdout: %w", err)
	}
	stderrFile, err := os.OpenFile(stderrPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("open stderr: %w", err)
	}
	if err := unix.Dup2(int(stdinFile.Fd()), int(os.Stdin.Fd())); err != nil {
		return fmt.Errorf("dup stdin: %w", err)
	}
	if err := unix.Dup2(int(stdoutFile.Fd()), int(os.Stdout.Fd())); err != nil {
		return fmt.Errorf("dup stdout: %w", err)
	}
	if err := unix.Dup2(int(stderrFile.Fd()), int(os.Stderr.Fd())); err != nil {
		return fmt.Errorf("dup stderr: %w", err)
	}
	_ = stdinFile.Close()
	_ = stdoutFile.Close()
	_ = stderrFile.Close()
	return nil
}

func buildEnv(env []string) []string {
	if len(env) > 0 {
		return env
	}
	return []string{"PATH=/usr/local/sbin:/usr/local/bin:/usr/sbin:/usr/bin:/sbin:/bin"}
}

func applySeccomp(profilePath string) error {
	data, err := os.ReadFile(profilePath)
	if err != nil {
		return fmt.Errorf("read seccomp profile: %w", err)
	}
	var cfg seccompConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return fmt.Errorf("parse seccomp profile: %w", err)
	}
	defaultAction, err := parseSeccompAction(cfg.DefaultAction)
	if err != nil {
		return err
	}
	rules, err := resolveSeccompRules(cfg)
	if err != nil {
		return err
	}
	filter, err := seccomp.NewFilter(defaultAction)
	if err != nil {
		return fmt.Errorf("create seccomp filter: %w", err)
	}
	for _, rule := range rules {
		if err := filter.AddRuleExact(rule.call, rule.action); err != nil {
			return fmt.Errorf("add seccomp rule: %w", err)
		}
	}
	if err := unix.Prctl(unix.PR_SET_NO_NEW_PRIVS, 1, 0, 0, 0); err != nil {
		return fmt.Errorf("set no new privs: %w", err)
	}
	if err := filter.Load(); err != nil {
		return fmt.Errorf("load seccomp filter: %w", err)
	}
	return nil
}

type seccompConfig struct {
	DefaultAction string           `json:"defaultAction"`
	Syscalls      []seccompSyscall `json:"syscalls"`
}

type seccompSyscall struct {
	Names  []string `json:"names"`
	Action string   `json:"action"`
}

type seccompRule struct {
	call   seccomp.ScmpSyscall
	action seccomp.ScmpAction
}

// resolveSeccompRules maps profile syscall names to syscall numbers.
// Names this libseccomp build does not know are skipped; they cannot
// be invoked under it either.
func resolveSeccompRules(cfg seccompConfig) ([]seccompRule, error) {
	var rules []seccompRule
	for _, sc := range cfg.Syscalls {
		action, err := parseSeccompAction(sc.Action)
		if err != nil {
			return nil, err
		}
		for _, name := range sc.Names {
			call, err := seccomp.GetSyscallFromName(name)
			if err != nil {
				continue
			}
			rules = append(rules, seccompRule{call: call, action: action})
		}
	}
	return rules, nil
}

func parseSeccompAction(action string) (seccomp.ScmpAction, error) {
	switch strings.ToUpper(action) {
	case "SCMP_ACT_ALLOW":
		return seccomp.ActAllow, nil
	case "SCMP_ACT_KILL", "SCMP_ACT_KILL_PROCESS":
		return seccomp.ActKillProcess, nil
	default:
		return seccomp.ActKillProcess, fmt.Errorf("unsupported seccomp action: %s", action)
	}
}

type initRequest struct {
	RunSpec       runSpec `json:"runSpec"`
	EnableSeccomp bool    `json:"enableSeccomp"`
}

type runSpec struct {
	SubmissionID       string       `json:"submissionId"`
	Stage              string       `json:"stage"`
	WorkDir            string       `json:"workDir"`
	Cmd                []string     `json:"cmd"`
	Env                []string     `json:"env"`
	StdinPath          string       `json:"stdinPath"`
	StdoutPath         string       `json:"stdoutPath"`
	StderrPath         string       `json:"stderrPath"`
	Limits             []limitEntry `json:"limits"`
	WallTimeMs         int64        `json:"wallTimeMs"`
	Credential         *credential  `json:"credential"`
	AllowedExecutables []string     `json:"allowedExecutables"`
	SeccompProfile     string       `json:"seccompProfile"`
}

type limitEntry struct {
	Kind string `json:"kind"`
	Soft uint64 `json:"soft"`
	Hard uint64 `json:"hard"`
}

type credential struct {
	UID uint32 `json:"uid"`
	GID uint32 `json:"gid"`
}
