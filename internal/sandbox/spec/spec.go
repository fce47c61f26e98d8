// Package spec defines the execution specification shared between the
// sandbox engine and the in-sandbox init helper.
package spec

// ResourceKind identifies an OS-enforced resource ceiling.
type ResourceKind string

const (
	// KindProcesses bounds concurrent processes/threads for the
	// execution identity, inherited by every descendant.
	KindProcesses ResourceKind = "processes"
	// KindOpenFiles bounds open file descriptors per process.
	KindOpenFiles ResourceKind = "open_files"
	// KindFileSize bounds the size of any single written file, in bytes.
	KindFileSize ResourceKind = "file_size"
)

// LimitEntry is one (kind, soft, hard) ceiling tuple.
type LimitEntry struct {
	Kind ResourceKind `json:"kind" yaml:"kind"`
	Soft uint64       `json:"soft" yaml:"soft"`
	Hard uint64       `json:"hard" yaml:"hard"`
}

// Credential is the unprivileged identity the helper switches to
// before executing the target command.
type Credential struct {
	UID uint32 `json:"uid"`
	GID uint32 `json:"gid"`
}

// RunSpec is the unified execution specification for one sandboxed task.
// Limits and credential must be fully applied before the first
// target-controlled instruction executes.
type RunSpec struct {
	SubmissionID string       `json:"submissionId"`
	Stage        string       `json:"stage"`
	WorkDir      string       `json:"workDir"`
	Cmd          []string     `json:"cmd"`
	Env          []string     `json:"env"`
	StdinPath    string       `json:"stdinPath"`
	StdoutPath   string       `json:"stdoutPath"`
	StderrPath   string       `json:"stderrPath"`
	Limits       []LimitEntry `json:"limits"`
	WallTimeMs   int64        `json:"wallTimeMs"`
	Credential   *Credential  `json:"credential,omitempty"`
	// AllowedExecutables is the closed set of binaries the helper may
	// exec, resolved at invocation time. Paths under WorkDir are
	// implicitly permitted.
	AllowedExecutables []string `json:"allowedExecutables"`
	SeccompProfile     string   `json:"seccompProfile,omitempty"`
}
