package errors_test

import (
	stderrors "errors"
	"testing"

	appErr "execbox/pkg/errors"
)

func TestNewUsesDefaultMessage(t *testing.T) {
	err := appErr.New(appErr.QueueFull)
	if err.Error() != "Submission queue is full" {
		t.Errorf("message = %q", err.Error())
	}
	if appErr.GetCode(err) != appErr.QueueFull {
		t.Errorf("code = %d", appErr.GetCode(err))
	}
}

func TestWrapPreservesCause(t *testing.T) {
	cause := stderrors.New("disk full")
	err := appErr.Wrapf(cause, appErr.WorkDirCreateFailed, "provisioning failed")

	if !stderrors.Is(err, cause) {
		t.Error("cause lost")
	}
	if !appErr.Is(err, appErr.WorkDirCreateFailed) {
		t.Errorf("code = %d", appErr.GetCode(err))
	}
	if err.Error() != "provisioning failed" {
		t.Errorf("message = %q", err.Error())
	}
}

func TestGetErrorWrapsForeign(t *testing.T) {
	err := appErr.GetError(stderrors.New("boom"))
	if err.Code != appErr.InternalError {
		t.Errorf("code = %d", err.Code)
	}
	if appErr.GetError(nil) != nil {
		t.Error("nil not passed through")
	}
}

func TestValidationErrorDetails(t *testing.T) {
	err := appErr.ValidationError("timeout", "required")
	if err.Details["field"] != "timeout" || err.Details["reason"] != "required" {
		t.Errorf("details = %v", err.Details)
	}
}

func TestHTTPStatusMapping(t *testing.T) {
	cases := map[appErr.ErrorCode]int{
		appErr.Success:            200,
		appErr.ValidationFailed:   400,
		appErr.SourceMissing:      400,
		appErr.SubmissionNotFound: 404,
		appErr.PayloadTooLarge:    413,
		appErr.QueueFull:          429,
		appErr.InstanceNotReady:   503,
		appErr.SandboxSystemError: 500,
		appErr.InternalError:      500,
	}
	for code, want := range cases {
		if got := code.HTTPStatus(); got != want {
			t.Errorf("%d.HTTPStatus() = %d, want %d", code, got, want)
		}
	}
}
