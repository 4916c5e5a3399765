package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/hyperjump/quill/internal/pipeline"
	"github.com/hyperjump/quill/internal/storage"
)

const streamWriteTimeout = 5 * time.Second

// Stream message types.
const (
	MessageProgress = "progress"
	MessageOutcome  = "outcome"
	MessageError    = "error"
)

// StreamMessage is one frame of the open-in-editor websocket stream. The stream is a series of
// progress frames followed by exactly one outcome or error frame.
type StreamMessage struct {
	Type     string             `json:"type"`
	Progress *pipeline.Progress `json:"progress,omitempty"`
	Outcome  *pipeline.Outcome  `json:"outcome,omitempty"`
	Error    string             `json:"error,omitempty"`
	Status   int                `json:"status,omitempty"`
}

// handleOpenStream runs the pipeline and streams its progress over a websocket. Request fields
// are taken from the query string.
func (s *Server) handleOpenStream(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req, err := openRequest{
		Plan:        q.Get("plan"),
		WorkspaceID: q.Get("workspace_id"),
		UserID:      q.Get("user_id"),
		UserName:    q.Get("user_name"),
	}.toRequest(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	write := func(msg StreamMessage) {
		_ = conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
		if err := conn.WriteJSON(msg); err != nil {
			s.logger.Debug("websocket write failed", zap.Error(err))
		}
	}
	req.Progress = func(p pipeline.Progress) {
		write(StreamMessage{Type: MessageProgress, Progress: &p})
	}

	out, err := s.opener.Open(r.Context(), req)
	if err != nil {
		s.logOpenError(req.SourceDocumentID, err)
		status := http.StatusInternalServerError
		if errors.Is(err, storage.ErrNotFound) {
			status = http.StatusNotFound
		}
		write(StreamMessage{Type: MessageError, Error: pipeline.UserMessage, Status: status})
	} else {
		write(StreamMessage{Type: MessageOutcome, Outcome: out})
	}
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(streamWriteTimeout))
}
