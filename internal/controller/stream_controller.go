package controller

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"execbox/internal/service"
	"execbox/pkg/utils/logger"
	"execbox/pkg/utils/response"
)

const streamWriteTimeout = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The service sits behind the platform gateway; origin policy is
	// enforced there.
	CheckOrigin: func(r *http.Request) bool { return true },
}

type stateEvent struct {
	SubmissionID string `json:"submission_id"`
	State        string `json:"state"`
	Final        bool   `json:"final"`
}

// StreamController pushes lifecycle transitions over a websocket.
type StreamController struct {
	svc *service.ExecutorService
}

// NewStreamController creates a new controller.
func NewStreamController(svc *service.ExecutorService) *StreamController {
	return &StreamController{svc: svc}
}

// Stream upgrades the connection and forwards state transitions for
// one submission until it reaches a terminal state.
func (h *StreamController) Stream(c *gin.Context) {
	submissionID := c.Param("id")
	if submissionID == "" {
		response.BadRequest(c, "Invalid submission id")
		return
	}

	// Subscribe before upgrading so an unknown id gets a plain HTTP
	// error instead of a dead websocket.
	states, cancel, err := h.svc.Watch(submissionID)
	if err != nil {
		response.Error(c, err)
		return
	}
	defer cancel()

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warn(c.Request.Context(), "websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	for state := range states {
		event := stateEvent{
			SubmissionID: submissionID,
			State:        string(state),
		}
		_ = conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
		if err := conn.WriteJSON(event); err != nil {
			return
		}
	}

	// Channel closed: the submission finished. Send the stored result
	// state as the final event.
	if res, err := h.svc.Result(submissionID); err == nil {
		event := stateEvent{
			SubmissionID: submissionID,
			State:        string(res.State),
			Final:        true,
		}
		_ = conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
		_ = conn.WriteJSON(event)
	}
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(streamWriteTimeout))
}
