package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"letterforge/internal/app"
	"letterforge/internal/usertoken"
	"letterforge/internal/util"
	"letterforge/pkg/domain"
)

// Config wires required dependencies for the HTTP server.
type Config struct {
	App            *app.App
	TokenVerifier  *usertoken.Verifier
	CallbackToken  string
	MaxUploadBytes int64
}

// Server exposes the newsletter pipeline over HTTP.
type Server struct {
	app            *app.App
	tokenVerifier  *usertoken.Verifier
	callbackToken  string
	maxUploadBytes int64
	mux            *http.ServeMux
}

// New constructs the server with routes configured.
func New(cfg Config) (*Server, error) {
	if cfg.App == nil {
		return nil, errors.New("app required")
	}
	if cfg.TokenVerifier == nil {
		return nil, errors.New("token verifier required")
	}
	maxUploadBytes := cfg.MaxUploadBytes
	if maxUploadBytes <= 0 {
		maxUploadBytes = 20 * 1024 * 1024
	}
	s := &Server{
		app:            cfg.App,
		tokenVerifier:  cfg.TokenVerifier,
		callbackToken:  strings.TrimSpace(cfg.CallbackToken),
		maxUploadBytes: maxUploadBytes,
		mux:            http.NewServeMux(),
	}
	s.routes()
	return s, nil
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler {
	return util.WithRequestID(util.WithRequestLog("letterforge", util.WithSecurityHeaders(util.WithCORS(s.mux))))
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)

	s.mux.Handle("/projects", s.withUser(s.handleProjects))
	s.mux.Handle("/projects/", s.withUser(s.handleProjectSubtree))
	s.mux.Handle("/newsletters/", s.withUser(s.handleNewsletterSubtree))
	s.mux.Handle("/spreadsheets/", s.withUser(s.handleSpreadsheetSubtree))

	s.mux.HandleFunc("/callbacks/newsletter", s.handleCallback)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type userHandler func(http.ResponseWriter, *http.Request, string)

func (s *Server) withUser(next userHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		userID, err := s.tokenVerifier.VerifySubject(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next(w, r, userID)
	})
}

// /projects
func (s *Server) handleProjects(w http.ResponseWriter, r *http.Request, userID string) {
	switch r.Method {
	case http.MethodPost:
		var in app.ProjectInput
		if !decodeBody(w, r, &in) {
			return
		}
		project, err := s.app.CreateProject(userID, in)
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, project)
	case http.MethodGet:
		projects, err := s.app.ListProjects(userID)
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": projects, "count": len(projects)})
	default:
		methodNotAllowed(w)
	}
}

// /projects/{id}, /projects/{id}/newsletters, /projects/{id}/spreadsheets
func (s *Server) handleProjectSubtree(w http.ResponseWriter, r *http.Request, userID string) {
	id, rest := splitPath(r.URL.Path, "/projects/")
	if id == "" {
		notFound(w)
		return
	}
	switch rest {
	case "":
		s.handleProjectByID(w, r, userID, id)
	case "newsletters":
		s.handleProjectNewsletters(w, r, userID, id)
	case "spreadsheets":
		s.handleProjectSpreadsheets(w, r, userID, id)
	default:
		notFound(w)
	}
}

func (s *Server) handleProjectByID(w http.ResponseWriter, r *http.Request, userID, id string) {
	switch r.Method {
	case http.MethodGet:
		project, err := s.app.GetProject(userID, id)
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, project)
	case http.MethodPatch, http.MethodPut:
		var in app.ProjectInput
		if !decodeBody(w, r, &in) {
			return
		}
		project, err := s.app.UpdateProject(userID, id, in)
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, project)
	case http.MethodDelete:
		if err := s.app.DeleteProject(userID, id); err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	default:
		methodNotAllowed(w)
	}
}

type createNewsletterRequest struct {
	app.NewsletterInput
	Generate bool `json:"generate"`
}

func (s *Server) handleProjectNewsletters(w http.ResponseWriter, r *http.Request, userID, projectID string) {
	switch r.Method {
	case http.MethodPost:
		var req createNewsletterRequest
		if !decodeBody(w, r, &req) {
			return
		}
		n, err := s.app.CreateNewsletter(r.Context(), userID, projectID, req.NewsletterInput, req.Generate)
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, n)
	case http.MethodGet:
		items, err := s.app.ListNewsletters(userID, projectID)
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items, "count": len(items)})
	default:
		methodNotAllowed(w)
	}
}

type createSpreadsheetRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (s *Server) handleProjectSpreadsheets(w http.ResponseWriter, r *http.Request, userID, projectID string) {
	switch r.Method {
	case http.MethodPost:
		var req createSpreadsheetRequest
		if !decodeBody(w, r, &req) {
			return
		}
		sheet, err := s.app.CreateSpreadsheet(userID, projectID, req.Name, req.Description)
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, sheet)
	case http.MethodGet:
		items, err := s.app.ListSpreadsheets(userID, projectID)
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items, "count": len(items)})
	default:
		methodNotAllowed(w)
	}
}

// /newsletters/{id}, /newsletters/{id}/generate|cancel|preview
func (s *Server) handleNewsletterSubtree(w http.ResponseWriter, r *http.Request, userID string) {
	id, rest := splitPath(r.URL.Path, "/newsletters/")
	if id == "" {
		notFound(w)
		return
	}
	switch rest {
	case "":
		s.handleNewsletterByID(w, r, userID, id)
	case "generate":
		s.handleGenerate(w, r, userID, id)
	case "cancel":
		s.handleCancel(w, r, userID, id)
	case "preview":
		s.handlePreview(w, r, userID, id)
	default:
		notFound(w)
	}
}

func (s *Server) handleNewsletterByID(w http.ResponseWriter, r *http.Request, userID, id string) {
	switch r.Method {
	case http.MethodGet:
		// Also serves the client's status poll during generation.
		n, err := s.app.GetNewsletter(userID, id)
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, n)
	case http.MethodPatch, http.MethodPut:
		var in app.NewsletterInput
		if !decodeBody(w, r, &in) {
			return
		}
		n, err := s.app.UpdateNewsletter(userID, id, in)
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, n)
	case http.MethodDelete:
		if err := s.app.DeleteNewsletter(userID, id); err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request, userID, id string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	n, err := s.app.Generate(r.Context(), userID, id)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, n)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request, userID, id string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	n, err := s.app.Cancel(r.Context(), userID, id)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, n)
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request, userID, id string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	n, err := s.app.GetNewsletter(userID, id)
	if err != nil {
		writeAppError(w, err)
		return
	}
	rendered, err := s.app.PreviewNotes(n.Notes)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"html": rendered})
}

// /spreadsheets/{id}, /spreadsheets/{id}/import, /spreadsheets/{id}/columns/{columnID}
func (s *Server) handleSpreadsheetSubtree(w http.ResponseWriter, r *http.Request, userID string) {
	id, rest := splitPath(r.URL.Path, "/spreadsheets/")
	if id == "" {
		notFound(w)
		return
	}
	switch {
	case rest == "":
		s.handleSpreadsheetByID(w, r, userID, id)
	case rest == "import":
		s.handleImport(w, r, userID, id)
	case strings.HasPrefix(rest, "columns/"):
		s.handleColumnType(w, r, userID, id, strings.TrimPrefix(rest, "columns/"))
	default:
		notFound(w)
	}
}

func (s *Server) handleSpreadsheetByID(w http.ResponseWriter, r *http.Request, userID, id string) {
	switch r.Method {
	case http.MethodGet:
		data, err := s.app.GetSpreadsheetData(userID, id)
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, data)
	case http.MethodDelete:
		if err := s.app.DeleteSpreadsheet(userID, id); err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request, userID, id string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	if err := r.ParseMultipartForm(s.maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid form data")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	data, err := s.app.ImportSpreadsheet(userID, id, header.Filename, file)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, data)
}

type columnTypeRequest struct {
	Type domain.ColumnType `json:"column_type"`
}

func (s *Server) handleColumnType(w http.ResponseWriter, r *http.Request, userID, sheetID, columnID string) {
	if r.Method != http.MethodPatch {
		methodNotAllowed(w)
		return
	}
	var req columnTypeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	columns, err := s.app.UpdateColumnType(userID, sheetID, columnID, req.Type)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"columns": columns})
}

// handleCallback receives asynchronous webhook results. It is not behind
// user auth; a shared callback token gates it when configured.
func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if s.callbackToken != "" {
		if strings.TrimSpace(r.Header.Get("X-Callback-Token")) != s.callbackToken {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
	}
	var req app.CallbackRequest
	if !decodeBody(w, r, &req) {
		return
	}
	outcome, err := s.app.HandleCallback(r.Context(), req)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": string(outcome)})
}

func splitPath(path, prefix string) (id, rest string) {
	trimmed := strings.TrimPrefix(path, prefix)
	parts := strings.SplitN(trimmed, "/", 2)
	id = parts[0]
	if len(parts) == 2 {
		rest = parts[1]
	}
	return id, rest
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	defer func() { _, _ = io.Copy(io.Discard, r.Body) }()
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return false
	}
	return true
}

func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if token == "" {
		return "", false
	}
	return token, true
}

func writeAppError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, app.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, app.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden")
	case errors.Is(err, app.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, app.ErrGenerating):
		writeError(w, http.StatusConflict, "newsletter is generating")
	case errors.Is(err, app.ErrNotGenerating):
		writeError(w, http.StatusConflict, "newsletter is not generating")
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func notFound(w http.ResponseWriter) {
	writeError(w, http.StatusNotFound, "not found")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

type errorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"requestId,omitempty"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{
		Error:     msg,
		Code:      errorCode(status, msg),
		RequestID: strings.TrimSpace(w.Header().Get("X-Request-Id")),
	})
}

func errorCode(status int, msg string) string {
	message := strings.ToLower(strings.TrimSpace(msg))
	switch {
	case message == "unauthorized":
		return "AUTH_INVALID_TOKEN"
	case message == "forbidden":
		return "PROJECT_FORBIDDEN"
	case message == "newsletter is generating":
		return "NEWSLETTER_GENERATING"
	case message == "newsletter is not generating":
		return "NEWSLETTER_NOT_GENERATING"
	case message == "invalid json body":
		return "REQUEST_INVALID_BODY"
	case message == "invalid form data":
		return "IMPORT_INVALID_FORM"
	case message == "file is required":
		return "IMPORT_FILE_REQUIRED"
	case message == "method not allowed":
		return "SYSTEM_METHOD_NOT_ALLOWED"
	case message == "not found":
		return "SYSTEM_NOT_FOUND"
	}

	switch status {
	case http.StatusBadRequest:
		return "REQUEST_VALIDATION_FAILED"
	case http.StatusUnauthorized:
		return "AUTH_INVALID_TOKEN"
	case http.StatusForbidden:
		return "PROJECT_FORBIDDEN"
	case http.StatusNotFound:
		return "SYSTEM_NOT_FOUND"
	case http.StatusMethodNotAllowed:
		return "SYSTEM_METHOD_NOT_ALLOWED"
	default:
		if status >= http.StatusInternalServerError {
			return "SYSTEM_INTERNAL_ERROR"
		}
		return "REQUEST_ERROR"
	}
}
