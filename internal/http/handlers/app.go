package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/brimobile1016/VEO3-NEW01/internal/domain"
	"github.com/brimobile1016/VEO3-NEW01/internal/infra"
	"github.com/brimobile1016/VEO3-NEW01/internal/orchestrator"
	"github.com/brimobile1016/VEO3-NEW01/internal/storage"
)

// App is the handler container; the router mounts its methods.
type App struct {
	Orchestrator *orchestrator.Orchestrator
	Sink         storage.Sink
	Config       *infra.Config
	Logger       infra.Logger
}

func NewApp(orc *orchestrator.Orchestrator, sink storage.Sink, cfg *infra.Config, logger infra.Logger) *App {
	return &App{Orchestrator: orc, Sink: sink, Config: cfg, Logger: logger}
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, kind domain.ErrorKind, message string) {
	a.json(w, code, map[string]string{"error": message, "kind": string(kind)})
}

func (a *App) notFound(w http.ResponseWriter, message string) {
	a.json(w, http.StatusNotFound, map[string]string{"error": message})
}

// jobError translates a classified generation error into an HTTP response.
func (a *App) jobError(w http.ResponseWriter, err error) {
	kind := domain.KindOf(err)
	message := err.Error()
	switch kind {
	case domain.ErrValidation:
		a.error(w, http.StatusBadRequest, kind, message)
	case domain.ErrInvalidCredential:
		a.error(w, http.StatusUnauthorized, kind, message)
	case domain.ErrSubmitFailed, domain.ErrPollFailed, domain.ErrNoArtifact:
		a.error(w, http.StatusBadGateway, kind, message)
	default:
		a.error(w, http.StatusInternalServerError, kind, message)
	}
}

// Health reports process liveness.
func (a *App) Health(w http.ResponseWriter, r *http.Request) {
	a.json(w, http.StatusOK, map[string]string{"status": "ok"})
}
