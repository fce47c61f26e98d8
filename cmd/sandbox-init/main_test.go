//go:build linux

package main

import (
	"strings"
	"testing"
)

func TestResolveCommand(t *testing.T) {
	rs := runSpec{
		WorkDir:            "/work",
		AllowedExecutables: []string{"/usr/bin/g++"},
	}

	rs.Cmd = []string{"/work/program"}
	if _, err := resolveCommand(rs); err != nil {
		t.Errorf("workdir binary rejected: %v", err)
	}

	rs.Cmd = []string{"/usr/bin/g++"}
	if _, err := resolveCommand(rs); err != nil {
		t.Errorf("allowlisted binary rejected: %v", err)
	}

	rs.Cmd = []string{"/work/../usr/bin/wget"}
	if _, err := resolveCommand(rs); err == nil {
		t.Error("traversal out of workdir permitted")
	}

	rs.Cmd = []string{"/bin/sh"}
	if _, err := resolveCommand(rs); err == nil {
		t.Error("unlisted binary permitted")
	}
}

func TestRlimitResource(t *testing.T) {
	for _, kind := range []string{"processes", "open_files", "file_size"} {
		if _, err := rlimitResource(kind); err != nil {
			t.Errorf("%s: %v", kind, err)
		}
	}
	if _, err := rlimitResource("address_space"); err == nil {
		t.Error("unknown kind accepted")
	}
}

func TestParseSeccompAction(t *testing.T) {
	if _, err := parseSeccompAction("SCMP_ACT_ALLOW"); err != nil {
		t.Errorf("allow: %v", err)
	}
	if _, err := parseSeccompAction("scmp_act_kill"); err != nil {
		t.Errorf("kill (lowercase): %v", err)
	}
	if _, err := parseSeccompAction("SCMP_ACT_TRACE"); err == nil {
		t.Error("unsupported action accepted")
	}
}

func TestResolveSeccompRules(t *testing.T) {
	cfg := seccompConfig{
		DefaultAction: "SCMP_ACT_KILL",
		Syscalls: []seccompSyscall{
			{Names: []string{"read", "write", "no_such_syscall_xyz"}, Action: "SCMP_ACT_ALLOW"},
		},
	}
	rules, err := resolveSeccompRules(cfg)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	// The unknown name is skipped, the real ones resolve.
	if len(rules) != 2 {
		t.Fatalf("rules = %d, want 2", len(rules))
	}

	cfg.Syscalls[0].Action = "SCMP_ACT_TRACE"
	if _, err := resolveSeccompRules(cfg); err == nil {
		t.Error("unsupported rule action accepted")
	}
}

func TestDecodeRequest(t *testing.T) {
	payload := `{"runSpec":{"submissionId":"sub-1","workDir":"/work","cmd":["/work/program"],` +
		`"limits":[{"kind":"processes","soft":16,"hard":16}],"wallTimeMs":5000}}`
	req, err := decodeRequest(strings.NewReader(payload))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if req.RunSpec.SubmissionID != "sub-1" || len(req.RunSpec.Limits) != 1 {
		t.Errorf("request = %+v", req)
	}
	if req.RunSpec.Limits[0].Kind != "processes" || req.RunSpec.Limits[0].Hard != 16 {
		t.Errorf("limit = %+v", req.RunSpec.Limits[0])
	}
}
