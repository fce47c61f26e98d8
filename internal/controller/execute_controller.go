// Package controller wires the execution service into HTTP handlers.
package controller

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"execbox/internal/service"
	"execbox/pkg/utils/response"
)

// ExecuteController handles submission requests.
type ExecuteController struct {
	svc *service.ExecutorService
}

// NewExecuteController creates a new controller.
func NewExecuteController(svc *service.ExecutorService) *ExecuteController {
	return &ExecuteController{svc: svc}
}

// Execute accepts a submission and enqueues it.
func (h *ExecuteController) Execute(c *gin.Context) {
	var req service.ExecuteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request body")
		return
	}
	acc, err := h.svc.Submit(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Accepted(c, acc)
}

// GetResult returns the result or current state for one submission.
func (h *ExecuteController) GetResult(c *gin.Context) {
	submissionID := c.Param("id")
	if submissionID == "" {
		response.BadRequest(c, "Invalid submission id")
		return
	}
	res, err := h.svc.Result(submissionID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, res)
}

// Healthz reports process liveness.
func (h *ExecuteController) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Readyz reports whether the instance pool accepts submissions.
func (h *ExecuteController) Readyz(c *gin.Context) {
	if !h.svc.Ready() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}
