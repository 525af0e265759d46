package history

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/zuneid-derdiwala/inventory-management-sub001/internal/decode"
	"github.com/zuneid-derdiwala/inventory-management-sub001/internal/pipeline"
	"github.com/zuneid-derdiwala/inventory-management-sub001/internal/session"
)

// maxUploadSize bounds uploads at 50MB to handle high-resolution phone photos.
const maxUploadSize = int64(50 << 20)

// corsError writes an error response with CORS headers set
func corsError(w http.ResponseWriter, message string, code int) {
	setCORSHeaders(w)
	http.Error(w, message, code)
}

// setCORSHeaders sets CORS headers on a response
func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.Header().Set("Access-Control-Max-Age", "3600")
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	setCORSHeaders(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

func writeJSONError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, map[string]string{"error": message})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleListScans returns all journal entries
func (s *Server) handleListScans(w http.ResponseWriter, r *http.Request) {
	scans, err := s.service.ListScans()
	if err != nil {
		slog.Error("Error listing scans", "error", err)
		corsError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, scans)
}

// handleUploadScan runs the one-shot detection pipeline over an uploaded image
func (s *Server) handleUploadScan(w http.ResponseWriter, r *http.Request) {
	data, filename, contentType, ok := s.readUpload(w, r)
	if !ok {
		return
	}

	scan, err := s.service.ProcessUpload(r.Context(), filename, data, contentType)
	if err != nil {
		if errors.Is(err, pipeline.ErrNoIdentifierFound) {
			writeJSONError(w, http.StatusUnprocessableEntity, "No identifier found in image")
			return
		}
		slog.Error("Error processing upload", "error", err, "filename", filename)
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, scan)
}

// readUpload parses the multipart form and returns the file payload.
func (s *Server) readUpload(w http.ResponseWriter, r *http.Request) (data []byte, filename, contentType string, ok bool) {
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		slog.Error("Error parsing multipart form", "error", err)
		errorMsg := "Error parsing form"
		if err.Error() == "http: request body too large" {
			errorMsg = "File is too large. Maximum size is 50MB."
		}
		writeJSONError(w, http.StatusBadRequest, errorMsg)
		return nil, "", "", false
	}

	f, header, err := r.FormFile("file")
	if err != nil {
		slog.Error("Error getting file from form", "error", err)
		writeJSONError(w, http.StatusBadRequest, "No file provided")
		return nil, "", "", false
	}
	defer f.Close()

	if header.Size > maxUploadSize {
		writeJSONError(w, http.StatusBadRequest, "File is too large. Maximum size is 50MB.")
		return nil, "", "", false
	}

	data, err = io.ReadAll(f)
	if err != nil {
		slog.Error("Error reading file data", "error", err, "filename", header.Filename)
		writeJSONError(w, http.StatusInternalServerError, "Error reading file. Please try again.")
		return nil, "", "", false
	}

	contentType = header.Header.Get("Content-Type")
	if contentType == "" {
		switch strings.ToLower(filepath.Ext(header.Filename)) {
		case ".jpg", ".jpeg":
			contentType = "image/jpeg"
		case ".png":
			contentType = "image/png"
		case ".gif":
			contentType = "image/gif"
		case ".pdf":
			contentType = "application/pdf"
		case ".heic", ".heif":
			contentType = "image/heic"
		default:
			contentType = "application/octet-stream"
		}
	}

	return data, header.Filename, contentType, true
}

// handleManualScan journals an operator-typed identifier. This path
// intentionally bypasses the validator (see the service docs).
func (s *Server) handleManualScan(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Identifier string `json:"identifier"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}

	scan, err := s.service.ManualEntry(req.Identifier)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, scan)
}

// handleGetScan returns one journal entry
func (s *Server) handleGetScan(w http.ResponseWriter, r *http.Request) {
	scan, err := s.service.GetScan(r.PathValue("id"))
	if err != nil {
		corsError(w, "Scan not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, scan)
}

// handleGetScanImage serves the archived source image
func (s *Server) handleGetScanImage(w http.ResponseWriter, r *http.Request) {
	data, contentType, err := s.service.GetScanImage(r.PathValue("id"))
	if err != nil {
		corsError(w, "Image not found", http.StatusNotFound)
		return
	}
	setCORSHeaders(w)
	if contentType != "" {
		w.Header().Set("Content-Type", contentType)
	}
	w.Write(data)
}

// handleDeleteScan removes a journal entry
func (s *Server) handleDeleteScan(w http.ResponseWriter, r *http.Request) {
	if err := s.service.DeleteScan(r.PathValue("id")); err != nil {
		corsError(w, "Scan not found", http.StatusNotFound)
		return
	}
	setCORSHeaders(w)
	w.WriteHeader(http.StatusNoContent)
}

// sessionView is the JSON shape of a session for the API.
type sessionView struct {
	ID     string              `json:"id"`
	State  session.State       `json:"state"`
	Mode   session.Mode        `json:"mode"`
	Error  session.ErrorReason `json:"error,omitempty"`
	Result *pipeline.Result    `json:"result,omitempty"`
}

func viewOf(sess *session.Session) sessionView {
	return sessionView{
		ID:     sess.ID(),
		State:  sess.State(),
		Mode:   sess.Mode(),
		Error:  sess.LastError(),
		Result: sess.Result(),
	}
}

// handleCreateSession creates a scanner session. Camera-mode sessions are
// backed by a push camera that clients feed via the frames endpoint.
func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Mode session.Mode `json:"mode"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if req.Mode == "" {
		req.Mode = session.ModeCamera
	}

	camera := session.NewPushCamera()
	sess := s.sessions.Create(session.Config{
		Mode:         req.Mode,
		Camera:       camera,
		Detector:     s.service.detector,
		ScanInterval: s.scanInterval,
		ScanTimeout:  s.scanTimeout,
		OnResult: func(result *pipeline.Result) {
			if _, err := s.service.RecordSessionResult(result); err != nil {
				slog.Error("Error journaling session result", "error", err)
			}
		},
	})

	s.camMu.Lock()
	s.cameras[sess.ID()] = camera
	s.camMu.Unlock()

	if req.Mode == session.ModeCamera {
		if err := sess.Start(r.Context()); err != nil {
			writeJSON(w, http.StatusConflict, viewOf(sess))
			return
		}
	}

	writeJSON(w, http.StatusCreated, viewOf(sess))
}

// handlePushFrame accepts a frame snapshot for a camera-mode session.
func (s *Server) handlePushFrame(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	s.camMu.Lock()
	camera, ok := s.cameras[id]
	s.camMu.Unlock()
	if !ok {
		corsError(w, "Session not found", http.StatusNotFound)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxUploadSize))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "Error reading frame")
		return
	}

	img, err := decode.DecodeUpload(body, r.Header.Get("Content-Type"))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "Undecodable frame")
		return
	}

	camera.Push(img)
	setCORSHeaders(w)
	w.WriteHeader(http.StatusAccepted)
}

// handleGetSession returns session state, and the result once accepted.
func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.sessions.Get(r.PathValue("id"))
	if !ok {
		corsError(w, "Session not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(sess))
}

// handleSwitchMode switches a session between camera and upload.
func (s *Server) handleSwitchMode(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.sessions.Get(r.PathValue("id"))
	if !ok {
		corsError(w, "Session not found", http.StatusNotFound)
		return
	}

	var req struct {
		Mode session.Mode `json:"mode"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || (req.Mode != session.ModeCamera && req.Mode != session.ModeUpload) {
		writeJSONError(w, http.StatusBadRequest, "Mode must be camera or upload")
		return
	}

	if err := sess.SwitchMode(req.Mode); err != nil {
		writeJSONError(w, http.StatusConflict, err.Error())
		return
	}

	if req.Mode == session.ModeCamera {
		if err := sess.Start(r.Context()); err != nil {
			writeJSON(w, http.StatusConflict, viewOf(sess))
			return
		}
	}

	writeJSON(w, http.StatusOK, viewOf(sess))
}

// handleEmergencyStop triggers the override transition.
func (s *Server) handleEmergencyStop(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.sessions.Get(r.PathValue("id"))
	if !ok {
		corsError(w, "Session not found", http.StatusNotFound)
		return
	}
	sess.EmergencyStop()
	writeJSON(w, http.StatusOK, viewOf(sess))
}

// handleAcknowledge returns an emergency-stopped session to idle.
func (s *Server) handleAcknowledge(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.sessions.Get(r.PathValue("id"))
	if !ok {
		corsError(w, "Session not found", http.StatusNotFound)
		return
	}
	if err := sess.Acknowledge(); err != nil {
		writeJSONError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, viewOf(sess))
}

// handleStopSession stops and removes a session.
func (s *Server) handleStopSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, ok := s.sessions.Get(id); !ok {
		corsError(w, "Session not found", http.StatusNotFound)
		return
	}
	s.sessions.Remove(id)

	s.camMu.Lock()
	delete(s.cameras, id)
	s.camMu.Unlock()

	setCORSHeaders(w)
	w.WriteHeader(http.StatusNoContent)
}
