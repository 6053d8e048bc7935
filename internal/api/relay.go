package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-relay/internal/device"
)

// registerRequest is the body of POST /devices/register.
type registerRequest struct {
	DeviceID string `json:"device_id"`
	Kind     string `json:"kind"`
}

// sendCommandRequest is the body of POST /commands.
type sendCommandRequest struct {
	Code    string          `json:"code"`
	Command json.RawMessage `json:"command"`
}

// handleRegister registers a device and returns its code.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !decodeBody(w, r, &req) {
		return
	}

	d, err := s.service.Register(r.Context(), req.DeviceID, req.Kind)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"device_id": d.ID,
		"code":      d.Code,
	})
}

// handleListDevices returns the devices currently online.
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := s.service.ListDevices(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"devices": devices, "count": len(devices)})
}

// handleFindByCode looks up the online device holding a code.
// An unknown code is a 200 with found=false.
func (s *Server) handleFindByCode(w http.ResponseWriter, r *http.Request) {
	d, found, err := s.service.FindByCode(r.Context(), pathParam(r, "code"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	resp := struct {
		Found  bool           `json:"found"`
		Device *device.Device `json:"device,omitempty"`
	}{Found: found, Device: d}
	writeJSON(w, http.StatusOK, resp)
}

// handlePollCommands delivers the device's pending commands and records a
// heartbeat.
func (s *Server) handlePollCommands(w http.ResponseWriter, r *http.Request) {
	cmds, err := s.service.PollCommands(r.Context(), pathParam(r, "id"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"commands": cmds, "count": len(cmds)})
}

// handlePostResponse stores the raw JSON body as a response from the device.
func (s *Server) handlePostResponse(w http.ResponseWriter, r *http.Request) {
	body, ok := readBody(w, r)
	if !ok {
		return
	}

	id, err := s.service.PostResponse(r.Context(), pathParam(r, "id"), body)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"response_id": id})
}

// handleSendCommand queues a command for the device holding a code.
func (s *Server) handleSendCommand(w http.ResponseWriter, r *http.Request) {
	var req sendCommandRequest
	if !decodeBody(w, r, &req) {
		return
	}

	id, err := s.service.SendCommand(r.Context(), req.Code, req.Command)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"command_id": id})
}

// handleReadResponses returns and consumes unread responses for a code.
func (s *Server) handleReadResponses(w http.ResponseWriter, r *http.Request) {
	items, err := s.service.ReadResponses(r.Context(), pathParam(r, "code"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"responses": items, "count": len(items)})
}

// handleStats returns device, command and response counts.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.service.Stats(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// decodeBody decodes a JSON request body into v, writing a 400 or 413 on
// failure.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, ErrCodeTooLarge, "request body too large")
			return false
		}
		writeBadRequest(w, "invalid JSON body")
		return false
	}
	return true
}

// readBody reads the raw request body, writing a 400 or 413 on failure.
func readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, ErrCodeTooLarge, "request body too large")
			return nil, false
		}
		writeBadRequest(w, "unreadable request body")
		return nil, false
	}
	return body, true
}

// pathParam returns the unescaped URL parameter.
func pathParam(r *http.Request, name string) string {
	raw := chi.URLParam(r, name)
	if v, err := url.PathUnescape(raw); err == nil {
		return v
	}
	return raw
}
