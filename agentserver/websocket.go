package agentserver

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hupe1980/agentdeck/core"
)

const wsWriteTimeout = 10 * time.Second

func (s *Server) upgrader() websocket.Upgrader {
	return websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			if s.allowedOrigin == "*" {
				return true
			}
			origin := r.Header.Get("Origin")
			return origin == "" || origin == s.allowedOrigin
		},
	}
}

// handleWebSocket serves one frame exchange per connection: a run.start
// frame streams the run, a run.cancel frame is acknowledged.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	up := s.upgrader()
	ws, err := up.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("agentserver.ws.upgrade_failed", "error", err)
		return
	}
	defer ws.Close()

	var frame core.Frame
	if err := ws.ReadJSON(&frame); err != nil {
		s.logger.Warn("agentserver.ws.read_failed", "error", err)
		return
	}

	switch frame.Type {
	case core.FrameRunStart:
		s.streamWebSocket(r.Context(), ws, frame)
	case core.FrameRunCancel:
		// Cancelling an unknown or finished run is acknowledged too.
		if err := s.runner.Cancel(frame.RunID); err != nil && !errors.Is(err, core.ErrNotFound) {
			s.writeFrame(ws, core.Frame{Type: core.FrameError, RunID: frame.RunID, Error: &core.RunError{Code: core.CodeAgentError, Message: err.Error()}})
			return
		}
		s.logger.Info("agentserver.run.cancel", "run_id", frame.RunID, "transport", "ws")
		s.writeFrame(ws, core.Frame{Type: core.FrameCancelAck, RunID: frame.RunID})
	default:
		s.writeFrame(ws, core.Frame{Type: core.FrameError, Error: &core.RunError{Code: core.CodeBadRequest, Message: "unknown frame type " + frame.Type}})
	}
}

func (s *Server) streamWebSocket(ctx context.Context, ws *websocket.Conn, frame core.Frame) {
	if frame.Request == nil || frame.Request.AgentName == "" {
		s.writeFrame(ws, core.Frame{Type: core.FrameError, Error: &core.RunError{Code: core.CodeBadRequest, Message: "agent_name is required"}})
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	run, events, err := s.runner.Run(ctx, *frame.Request)
	if err != nil {
		code := core.CodeAgentError
		if errors.Is(err, core.ErrAgentNotFound) {
			code = core.CodeAgentNotFound
		}
		s.writeFrame(ws, core.Frame{Type: core.FrameError, Error: &core.RunError{Code: code, Message: err.Error()}})
		return
	}

	// Reader loop: a closed connection abandons the run.
	go func() {
		defer cancel()
		for {
			if _, _, err := ws.NextReader(); err != nil {
				return
			}
		}
	}()

	for ev := range events {
		_ = ws.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		if err := ws.WriteJSON(ev); err != nil {
			s.logger.Warn("agentserver.ws.write_failed", "run_id", run.ID, "error", err)
			cancel()
			continue
		}
	}

	_ = ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
}

func (s *Server) writeFrame(ws *websocket.Conn, f core.Frame) {
	_ = ws.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	if err := ws.WriteJSON(f); err != nil {
		s.logger.Warn("agentserver.ws.write_failed", "frame", f.Type, "error", err)
	}
}
