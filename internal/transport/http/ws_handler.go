package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"studion-points-service/internal/app"
	"studion-points-service/internal/domain"
)

// WSHandler streams one quiz attempt over a websocket: the connection starts
// (or resumes) the attempt, each inbound answer is scored live, and a
// complete message runs the full completion-and-award flow.
type WSHandler struct {
	attempts     *app.AttemptService
	orchestrator *app.Orchestrator
	log          *logrus.Logger
	upgrader     websocket.Upgrader
}

func NewWSHandler(attempts *app.AttemptService, orchestrator *app.Orchestrator, log *logrus.Logger) *WSHandler {
	return &WSHandler{
		attempts:     attempts,
		orchestrator: orchestrator,
		log:          log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type answerPayload struct {
	QuestionID  string `json:"questionId"`
	Answer      string `json:"answer"`
	TimeSpentMs int64  `json:"timeSpentMs"`
}

type answerResult struct {
	QuestionID         string  `json:"questionId"`
	Correct            bool    `json:"correct"`
	ProgressPercentage float64 `json:"progressPercentage"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ServeWS upgrades the request and wires the connection into the attempt use
// cases. Authentication happens upstream; the user id arrives resolved.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	quizID := r.URL.Query().Get("quizId")
	userID := r.URL.Query().Get("userId")
	if quizID == "" || userID == "" {
		http.Error(w, "missing quizId or userId", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Warn("ws upgrade failed")
		return
	}
	defer conn.Close()

	attempt, err := h.attempts.Start(r.Context(), quizID, userID)
	if err != nil {
		_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: errPayload(err)})
		return
	}
	_ = conn.WriteJSON(outboundMessage[domain.Attempt]{Type: "attemptStarted", Payload: attempt})

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			return
		}
		switch inbound.Type {
		case "answer":
			var payload answerPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Code: "invalid_argument", Message: "invalid answer payload"}})
				continue
			}
			result, err := h.attempts.SubmitAnswer(r.Context(), attempt.ID, userID, payload.QuestionID, payload.Answer, payload.TimeSpentMs)
			if err != nil {
				_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: errPayload(err)})
				continue
			}
			_ = conn.WriteJSON(outboundMessage[answerResult]{Type: "answerResult", Payload: answerResult{
				QuestionID:         payload.QuestionID,
				Correct:            result.IsCorrect,
				ProgressPercentage: result.ProgressPercentage,
			}})
		case "complete":
			completion, err := h.orchestrator.CompleteQuizAndAward(r.Context(), attempt.ID, userID)
			if err != nil {
				_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: errPayload(err)})
				continue
			}
			_ = conn.WriteJSON(outboundMessage[app.CompletionResult]{Type: "completed", Payload: completion})
		default:
			_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Code: "invalid_argument", Message: "unsupported message type"}})
		}
	}
}

func errPayload(err error) errorPayload {
	return errorPayload{Code: errCode(err), Message: err.Error()}
}

func errCode(err error) string {
	switch {
	case errors.Is(err, domain.ErrQuizNotFound),
		errors.Is(err, domain.ErrAttemptNotFound),
		errors.Is(err, domain.ErrAccountNotFound),
		errors.Is(err, domain.ErrQuestionNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrInvalidState):
		return "invalid_state"
	case errors.Is(err, domain.ErrInvalidArgument):
		return "invalid_argument"
	case errors.Is(err, domain.ErrInsufficientBalance):
		return "insufficient_balance"
	default:
		return "upstream_failure"
	}
}
