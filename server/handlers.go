package server

import (
	"encoding/json"
	"net/http"

	"musicbox/config"
	"musicbox/core/auth"
	"musicbox/core/library"
	"musicbox/core/session"
	"musicbox/logger"
	"musicbox/repository"
)

// APIHandler 处理所有HTTP请求
type APIHandler struct {
	userRepo repository.UserRepository
	library  *library.Service
	signer   *auth.Signer
	sessions *session.Store
	pages    *pages
	cfg      *config.Config
}

// NewAPIHandler 创建新的API处理器
func NewAPIHandler(
	userRepo repository.UserRepository,
	lib *library.Service,
	signer *auth.Signer,
	sessions *session.Store,
	cfg *config.Config,
) (*APIHandler, error) {
	p, err := loadPages()
	if err != nil {
		return nil, err
	}
	return &APIHandler{
		userRepo: userRepo,
		library:  lib,
		signer:   signer,
		sessions: sessions,
		pages:    p,
		cfg:      cfg,
	}, nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn("failed to encode response", logger.ErrorField(err))
	}
}

// redirect always answers with 303 so POST forms land on a GET.
func redirect(w http.ResponseWriter, r *http.Request, target string) {
	http.Redirect(w, r, target, http.StatusSeeOther)
}

// HealthHandler reports liveness.
func (h *APIHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
