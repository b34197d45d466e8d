// Package http provides the HTTP handlers of the directory mock service:
// group listing, credential check and authentication.
package http

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/atinyakov/gvagate/internal/middleware"
	"github.com/atinyakov/gvagate/internal/models"
	"go.uber.org/zap"
)

// unauthorizedBody is the fixed plain-text body of every failed authentication.
const unauthorizedBody = "Unauthorized"

// DirectoryService defines the directory operations required by the HTTP
// handlers.
type DirectoryService interface {
	// ListGroups returns every group record in order.
	ListGroups(ctx context.Context) ([]models.GroupRecord, error)
	// CheckCredential verifies login/password without failing on bad
	// credentials; the result carries the outcome.
	CheckCredential(ctx context.Context, login, password string) (models.CheckResult, error)
	// Authenticate returns the profile envelope, or an error for any
	// failure cause.
	Authenticate(ctx context.Context, login, password string) (*models.AuthResponse, error)
}

// DirectoryHandler handles the directory HTTP endpoints.
type DirectoryHandler struct {
	// DirectoryService performs the underlying lookups.
	DirectoryService DirectoryService
	// Logger receives failure details. Passwords are never logged.
	Logger *zap.Logger
}

// NewDirectoryHandler returns a handler; a nil logger is replaced by a no-op one.
func NewDirectoryHandler(svc DirectoryService, logger *zap.Logger) *DirectoryHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DirectoryHandler{DirectoryService: svc, Logger: logger}
}

// ListGroups handles GET /get_group and GET /get_groups and writes the
// full group list as a JSON array.
func (h *DirectoryHandler) ListGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := h.DirectoryService.ListGroups(r.Context())
	if err != nil {
		h.logger(r).Error("list groups failed", zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if groups == nil {
		groups = []models.GroupRecord{}
	}
	writeJSON(w, groups)
}

// Login handles GET /login?user=&password=. Bad credentials are reported
// with success=false and status 200, never with a 4xx.
func (h *DirectoryHandler) Login(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	login := q.Get("user")

	result, err := h.DirectoryService.CheckCredential(r.Context(), login, q.Get("password"))
	if err != nil {
		h.logger(r).Error("credential check failed", zap.String("login", login), zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, result)
}

// Authenticate handles the form-encoded POST login endpoints. Any failure,
// whatever its cause, yields 401 with the plain-text body "Unauthorized".
func (h *DirectoryHandler) Authenticate(w http.ResponseWriter, r *http.Request) {
	login := r.PostFormValue("user")

	resp, err := h.DirectoryService.Authenticate(r.Context(), login, r.PostFormValue("passwd"))
	if err != nil {
		h.logger(r).Debug("authentication rejected", zap.String("login", login), zap.Error(err))
		writeUnauthorized(w)
		return
	}
	writeJSON(w, resp)
}

func (h *DirectoryHandler) logger(r *http.Request) *zap.Logger {
	return h.Logger.With(zap.String("request_id", middleware.GetRequestID(r.Context())))
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func writeUnauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(unauthorizedBody))
}
