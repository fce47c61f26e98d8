package controller_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"execbox/internal/controller"
	"execbox/internal/sandbox/policy"
	"execbox/internal/sandbox/result"
	"execbox/internal/sandbox/runner"
	"execbox/internal/sandbox/supervisor"
	"execbox/internal/service"
)

type stubRunner struct{}

func (stubRunner) Compile(ctx context.Context, req runner.CompileRequest) (result.CompileResult, error) {
	return result.CompileResult{OK: true, BinaryPath: "program"}, nil
}

func (stubRunner) Run(ctx context.Context, req runner.RunRequest) (result.RunResult, error) {
	return result.RunResult{Outcome: result.OutcomeCompleted, Stdout: "ok\n"}, nil
}

func newTestRouter(t *testing.T) (*gin.Engine, *service.ExecutorService) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	workDir := policy.NewWorkingDirectory(filepath.Join(t.TempDir(), "instance-0"), policy.ExecutionIdentity{
		Username: "test",
		UID:      uint32(os.Getuid()),
		GID:      uint32(os.Getgid()),
	})
	if err := workDir.Provision(); err != nil {
		t.Fatalf("provision: %v", err)
	}
	sup, err := supervisor.New(stubRunner{}, workDir)
	if err != nil {
		t.Fatalf("new supervisor: %v", err)
	}
	svc, err := service.NewExecutorService(context.Background(), []*service.Instance{
		{ID: "instance-0", Supervisor: sup},
	}, service.NewResultStore(0, 0), service.Options{})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	t.Cleanup(svc.Shutdown)

	execController := controller.NewExecuteController(svc)
	router := gin.New()
	router.GET("/healthz", execController.Healthz)
	router.GET("/readyz", execController.Readyz)
	api := router.Group("/api/v1")
	api.POST("/executions", execController.Execute)
	api.GET("/executions/:id", execController.GetResult)
	return router, svc
}

func TestExecuteEndpointAccepts(t *testing.T) {
	router, _ := newTestRouter(t)

	body := `{"source":"int main(){return 0;}","stdin":"1\n"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/executions", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	var resp struct {
		Data struct {
			SubmissionID string `json:"submission_id"`
		} `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if resp.Data.SubmissionID == "" {
		t.Fatal("no submission id in response")
	}
}

func TestExecuteEndpointRejectsBadBody(t *testing.T) {
	router, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/executions", strings.NewReader("{not json"))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestExecuteEndpointRejectsEmptySource(t *testing.T) {
	router, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/executions", strings.NewReader(`{"source":""}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestGetResultEndpoint(t *testing.T) {
	router, svc := newTestRouter(t)

	acc, err := svc.Submit(context.Background(), service.ExecuteRequest{Source: "int main(){}"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/executions/"+acc.SubmissionID, nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
		}
		var resp struct {
			Data result.SubmissionResult `json:"data"`
		}
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("parse response: %v", err)
		}
		if resp.Data.State == result.StateTornDown {
			if resp.Data.Run == nil || resp.Data.Run.Stdout != "ok\n" {
				t.Errorf("run = %+v", resp.Data.Run)
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("submission stuck in %s", resp.Data.State)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestGetResultEndpointUnknown(t *testing.T) {
	router, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/executions/nope", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestHealthEndpoints(t *testing.T) {
	router, _ := newTestRouter(t)

	for _, path := range []string{"/healthz", "/readyz"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Errorf("%s status = %d", path, w.Code)
		}
	}
}
