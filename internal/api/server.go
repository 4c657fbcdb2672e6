package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dgnsrekt/pageprobe/internal/relay"
	"github.com/dgnsrekt/pageprobe/internal/runstore"
	"github.com/dgnsrekt/pageprobe/internal/service"
)

type Service interface {
	RunProbe(ctx context.Context, req service.ProbeRequest) (service.RunResult, error)
	ListRuns(ctx context.Context) ([]runstore.RunMeta, error)
	GetRun(ctx context.Context, id string) (runstore.RunMeta, error)
	ReadArtifact(ctx context.Context, id, name string) ([]byte, string, error)
	DeleteRun(ctx context.Context, id string) error
	Health(ctx context.Context) service.Health
}

// NewServer builds the HTTP handler. broker may be nil, in which case the
// event stream endpoints are not mounted.
func NewServer(svc Service, broker *relay.Broker) http.Handler {
	router := chi.NewMux()
	router.Use(middleware.RequestID)
	router.Use(requestLogger)
	router.Use(middleware.Recoverer)

	cfg := huma.DefaultConfig("Page Probe API", "1.0.0")
	cfg.DocsPath = ""
	api := humachi.New(router, cfg)

	router.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		writeHTML(w, docsHTML)
	})
	router.Get("/docs/events", func(w http.ResponseWriter, r *http.Request) {
		writeHTML(w, eventsDocsHTML)
	})
	if broker != nil {
		router.Get("/api/v1/events", relay.SSEHandler(broker))
		router.Get("/api/v1/events/ws", relay.WSHandler(broker))
	}

	registerProbeHandlers(api, svc)
	registerHealthHandlers(api, svc)

	return router
}

func writeHTML(w http.ResponseWriter, page string) {
	w.Header().Set("Content-Type", "text/html")
	if _, err := w.Write([]byte(page)); err != nil {
		slog.Debug("docs response write failed", "error", err)
	}
}

func mapErr(err error) error {
	if err == nil {
		return nil
	}
	var coded *service.CodedError
	if errors.As(err, &coded) {
		switch coded.Code {
		case service.CodeValidation:
			return huma.Error400BadRequest(coded.Message)
		case service.CodeRunNotFound:
			return huma.Error404NotFound(coded.Message)
		case service.CodeProbeBusy:
			return huma.Error409Conflict(coded.Message)
		case service.CodeNavigationFailed:
			return huma.Error502BadGateway(coded.Error())
		case service.CodeBrowserUnavailable:
			return huma.Error503ServiceUnavailable(coded.Message)
		default:
			return huma.Error500InternalServerError(fmt.Sprintf("%s: %s", coded.Code, coded.Message))
		}
	}
	return huma.Error500InternalServerError(err.Error())
}
