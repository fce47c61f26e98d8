package errors

// ErrorCode represents a unique error identifier
type ErrorCode int

// Error code ranges allocation:
// 20000-20999: System & Common errors
// 21000-21999: Provisioning errors (identity, filesystem, limits, denylist)
// 22000-22999: Compilation errors
// 23000-23999: Execution errors
// 24000-24999: Service & API errors

const (
	// ========== System & Common Errors (20000-20999) ==========

	// Success
	Success ErrorCode = 20000

	// Generic errors (20000-20099)
	InternalError      ErrorCode = 20001
	InvalidParams      ErrorCode = 20002
	NotFound           ErrorCode = 20003
	Timeout            ErrorCode = 20004
	ServiceUnavailable ErrorCode = 20005

	// Validation errors (20100-20199)
	ValidationFailed   ErrorCode = 20100
	RequiredFieldEmpty ErrorCode = 20101

	// ========== Provisioning Errors (21000-21999) ==========

	// Identity (21000-21099)
	IdentityLookupFailed  ErrorCode = 21000
	IdentityPrivileged    ErrorCode = 21001
	IdentityLoginEnabled  ErrorCode = 21002
	IdentityGroupElevated ErrorCode = 21003

	// Filesystem (21100-21199)
	WorkDirCreateFailed ErrorCode = 21100
	WorkDirResetFailed  ErrorCode = 21101
	WorkDirBadOwner     ErrorCode = 21102
	WorkDirBadMode      ErrorCode = 21103

	// Limits (21200-21299)
	LimitTableInvalid ErrorCode = 21200
	LimitApplyFailed  ErrorCode = 21201

	// Denylist (21300-21399)
	DenylistBinaryPresent ErrorCode = 21300
	DenylistRemoveFailed  ErrorCode = 21301
	ExecNotPermitted      ErrorCode = 21302

	// ========== Compilation Errors (22000-22999) ==========

	CompileFailed       ErrorCode = 22000
	CompileSetupFailed  ErrorCode = 22001
	SourceTooLarge      ErrorCode = 22002
	SourceMissing       ErrorCode = 22003
	CompilerUnavailable ErrorCode = 22004

	// ========== Execution Errors (23000-23999) ==========

	SandboxSystemError    ErrorCode = 23000
	TimeLimitExceeded     ErrorCode = 23001
	ResourceLimitExceeded ErrorCode = 23002
	ProcessCrashed        ErrorCode = 23003
	CollectFailed         ErrorCode = 23004

	// ========== Service & API Errors (24000-24999) ==========

	SubmissionNotFound ErrorCode = 24000
	QueueFull          ErrorCode = 24001
	InstanceNotReady   ErrorCode = 24002
	PayloadTooLarge    ErrorCode = 24003
)

// codeMessages maps error codes to default messages
var codeMessages = map[ErrorCode]string{
	Success: "Success",

	InternalError:      "Internal error",
	InvalidParams:      "Invalid parameters",
	NotFound:           "Resource not found",
	Timeout:            "Operation timed out",
	ServiceUnavailable: "Service unavailable",

	ValidationFailed:   "Validation failed",
	RequiredFieldEmpty: "Required field is empty",

	IdentityLookupFailed:  "Execution identity lookup failed",
	IdentityPrivileged:    "Execution identity is privileged",
	IdentityLoginEnabled:  "Execution identity can authenticate interactively",
	IdentityGroupElevated: "Execution identity has an elevated group",

	WorkDirCreateFailed: "Working directory creation failed",
	WorkDirResetFailed:  "Working directory reset failed",
	WorkDirBadOwner:     "Working directory has wrong owner",
	WorkDirBadMode:      "Working directory has wrong permissions",

	LimitTableInvalid: "Resource limit table is invalid",
	LimitApplyFailed:  "Applying resource limits failed",

	DenylistBinaryPresent: "Denylisted binary present on instance",
	DenylistRemoveFailed:  "Denylisted binary removal failed",
	ExecNotPermitted:      "Executable not permitted by policy",

	CompileFailed:       "Compilation failed",
	CompileSetupFailed:  "Compilation setup failed",
	SourceTooLarge:      "Source file too large",
	SourceMissing:       "Source file missing",
	CompilerUnavailable: "Compiler entry point unavailable",

	SandboxSystemError:    "Sandbox system error",
	TimeLimitExceeded:     "Wall-clock time limit exceeded",
	ResourceLimitExceeded: "Resource ceiling exceeded",
	ProcessCrashed:        "Process terminated by fault signal",
	CollectFailed:         "Result collection failed",

	SubmissionNotFound: "Submission not found",
	QueueFull:          "Submission queue is full",
	InstanceNotReady:   "Instance is not provisioned",
	PayloadTooLarge:    "Payload too large",
}

// Message returns the default message for the error code
func (c ErrorCode) Message() string {
	if msg, ok := codeMessages[c]; ok {
		return msg
	}
	return "Unknown error"
}

// HTTPStatus maps the error code to an HTTP status
func (c ErrorCode) HTTPStatus() int {
	switch {
	case c == Success:
		return 200
	case c == NotFound, c == SubmissionNotFound:
		return 404
	case c >= 20100 && c < 20200: // Validation errors
		return 400
	case c == InvalidParams, c == SourceTooLarge, c == SourceMissing:
		return 400
	case c == PayloadTooLarge:
		return 413
	case c == QueueFull:
		return 429
	case c == ServiceUnavailable, c == InstanceNotReady:
		return 503
	default:
		return 500
	}
}
