package policy_test

import (
	"strings"
	"testing"

	"execbox/internal/sandbox/policy"
)

func TestDefaultCompileProfileCommand(t *testing.T) {
	profile := policy.DefaultCompileProfile()
	if err := profile.Validate(); err != nil {
		t.Fatalf("default profile invalid: %v", err)
	}

	cmd, err := profile.Command([]string{"/work/main.cpp"}, "/work/program")
	if err != nil {
		t.Fatalf("command: %v", err)
	}
	if cmd[0] != "/usr/bin/g++" {
		t.Errorf("compiler = %s", cmd[0])
	}

	joined := strings.Join(cmd, " ")
	for _, flag := range []string{
		"-fstack-protector-strong",
		"-D_FORTIFY_SOURCE=2",
		"-fPIE",
		"-pie",
		"-Wl,-z,relro",
		"-Wl,-z,now",
		"-std=c++17",
		"-O2",
		"-Wall",
	} {
		if !strings.Contains(joined, flag) {
			t.Errorf("missing flag %s in %q", flag, joined)
		}
	}
	if cmd[len(cmd)-1] != "/work/main.cpp" {
		t.Errorf("source not last: %v", cmd)
	}
	if cmd[len(cmd)-3] != "-o" || cmd[len(cmd)-2] != "/work/program" {
		t.Errorf("output placement wrong: %v", cmd)
	}
}

func TestCompileProfileStackProtectionLevels(t *testing.T) {
	cases := map[string]string{
		policy.StackProtectBasic:  "-fstack-protector",
		policy.StackProtectStrong: "-fstack-protector-strong",
		policy.StackProtectAll:    "-fstack-protector-all",
	}
	for level, flag := range cases {
		p := policy.DefaultCompileProfile()
		p.StackProtection = level
		flags := strings.Join(p.HardeningFlags(), " ")
		if !strings.Contains(flags, flag) {
			t.Errorf("%s: missing %s", level, flag)
		}
	}

	p := policy.DefaultCompileProfile()
	p.StackProtection = policy.StackProtectNone
	for _, f := range p.HardeningFlags() {
		if strings.HasPrefix(f, "-fstack-protector") {
			t.Errorf("none level still emits %s", f)
		}
	}
}

func TestCompileProfileValidateRejects(t *testing.T) {
	p := policy.DefaultCompileProfile()
	p.StackProtection = "maximal"
	if err := p.Validate(); err == nil {
		t.Error("bad stack protection accepted")
	}

	p = policy.DefaultCompileProfile()
	p.FortifyLevel = 7
	if err := p.Validate(); err == nil {
		t.Error("out-of-range fortify level accepted")
	}

	p = policy.DefaultCompileProfile()
	p.Compiler = ""
	if err := p.Validate(); err == nil {
		t.Error("empty compiler accepted")
	}
}

func TestCompileProfileCommandRequiresSources(t *testing.T) {
	p := policy.DefaultCompileProfile()
	if _, err := p.Command(nil, "/work/program"); err == nil {
		t.Error("empty sources accepted")
	}
	if _, err := p.Command([]string{"/work/main.cpp"}, ""); err == nil {
		t.Error("empty output accepted")
	}
}
