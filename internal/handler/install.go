package handler

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/capitalize-ai/imbot-relay/internal/bitrix"
	"github.com/capitalize-ai/imbot-relay/internal/middleware"
	"github.com/capitalize-ai/imbot-relay/pkg/logger"
)

// Registrar registers the bot on a portal.
type Registrar interface {
	Register(ctx context.Context, endpoint string, reg bitrix.Registration) (map[string]any, error)
}

// InstallHandler handles the portal install callback.
type InstallHandler struct {
	registrar    Registrar
	webhookPath  string
	registration bitrix.Registration
	logger       *logger.Logger
}

// NewInstallHandler creates an install handler. webhookPath is the REST path
// of the configured webhook, e.g. "/rest/1/token".
func NewInstallHandler(registrar Registrar, webhookPath string, reg bitrix.Registration, log *logger.Logger) *InstallHandler {
	return &InstallHandler{
		registrar:    registrar,
		webhookPath:  webhookPath,
		registration: reg,
		logger:       log,
	}
}

// RegistrationURL builds the imbot.register endpoint on the installing portal.
func RegistrationURL(domain string, secure bool, webhookPath string) string {
	proto := "http"
	if secure {
		proto = "https"
	}
	return proto + "://" + domain + bitrix.MethodURL(webhookPath, bitrix.MethodRegister)
}

// Install handles POST /install?DOMAIN=..&PROTOCOL=1
func (h *InstallHandler) Install(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	domain := query.Get("DOMAIN")
	log := h.logger.WithContext(r.Context()).With(zap.String("domain", domain))

	if err := middleware.ValidateDomain(domain); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if h.webhookPath == "" {
		writeError(w, http.StatusInternalServerError, "BITRIX_WEBHOOK is not configured")
		return
	}

	endpoint := RegistrationURL(domain, query.Get("PROTOCOL") == "1", h.webhookPath)
	log.Info("registering bot", zap.String("endpoint_host", domain))

	resp, err := h.registrar.Register(r.Context(), endpoint, h.registration)
	if err != nil {
		log.Error("bot registration failed", zap.Error(err))
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":          "installed",
		"bitrix_response": resp,
	})
}
