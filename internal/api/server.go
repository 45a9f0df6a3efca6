package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/google/uuid"
	"github.com/justinas/alice"
	"github.com/rs/zerolog/hlog"
	"github.com/rs/zerolog/log"
	"go-probe-agent/pkg/logger"
	"go-probe-agent/pkg/models"
)

const probeIDHeader = "Probe-Id"

// Prober runs a batch of probes. It never fails; every url gets an outcome.
type Prober interface {
	Run(ctx context.Context, id uuid.UUID, urls []string) models.BatchResult
}

type command struct {
	Services *[]string `json:"services"`
}

type health struct {
	OK bool `json:"ok"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type Server struct {
	server *http.Server
	state  *resultsCache
}

func New(port string, prober Prober, cacheSize int) (*Server, error) {
	results, err := newResultsCache(cacheSize)
	if err != nil {
		return nil, err
	}

	r := chi.NewRouter()
	r.Use(logMiddleware())

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		render.JSON(w, r, health{OK: true})
	})

	r.Get("/probes/{id}", func(w http.ResponseWriter, r *http.Request) {
		idParam := chi.URLParam(r, "id")
		id, err := uuid.Parse(idParam)
		if err != nil {
			log.Debug().Msg("cannot parse id")
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, errorResponse{Error: "unable to parse id"})
			return
		}
		res, ok := results.get(id)
		if !ok {
			log.Debug().Str(logger.RequestTaskID, idParam).Msg("cannot find id")
			render.Status(r, http.StatusNotFound)
			render.JSON(w, r, errorResponse{Error: "unknown probe id"})
			return
		}
		render.JSON(w, r, res)
	})

	r.Post("/start-probe", func(w http.ResponseWriter, r *http.Request) {
		cmd := command{}
		if err := unmarshalRequestBody(r, &cmd); err != nil {
			log.Debug().Err(err).Msg("cannot parse body")
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, errorResponse{Error: "unable to parse body"})
			return
		}
		if cmd.Services == nil {
			log.Debug().Msg("body without services")
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, errorResponse{Error: "services is required"})
			return
		}

		id := uuid.New()
		log.Info().Str(logger.RequestTaskID, id.String()).Int("targets", len(*cmd.Services)).Msg("probe batch requested")

		res := prober.Run(r.Context(), id, *cmd.Services)
		results.add(id, res)

		w.Header().Set(probeIDHeader, id.String())
		render.JSON(w, r, res)
	})

	return &Server{
		server: &http.Server{
			Addr:              fmt.Sprint(":", port),
			Handler:           r,
			ReadHeaderTimeout: 10 * time.Second,
		},
		state: results,
	}, nil
}

func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

func (s *Server) Start() error {
	log.Info().Str("addr", s.server.Addr).Msg("http server starting")
	err := s.server.ListenAndServe()
	if !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	err := s.server.Shutdown(ctx)
	if err != nil {
		return fmt.Errorf("http server: %w", err)
	}

	return nil
}

func logMiddleware() func(http.Handler) http.Handler {
	c := alice.New()
	c = c.Append(hlog.NewHandler(log.Logger))
	c = c.Append(hlog.RemoteAddrHandler("ip"))
	c = c.Append(hlog.UserAgentHandler("agent"))
	c = c.Append(hlog.RefererHandler("referer"))
	c = c.Append(hlog.RequestIDHandler("req_id", "Request-Id"))
	c = c.Append(hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		hlog.FromRequest(r).Info().
			Str("verb", r.Method).
			Stringer("url", r.URL).
			Int("size", size).
			Int("status", status).
			Int64("duration", duration.Milliseconds()).
			Msg("REQ")
	}))

	return c.Then
}

func unmarshalRequestBody(req *http.Request, output interface{}) error {
	if req.Body == nil {
		return errors.New("invalid body in request")
	}

	body, err := io.ReadAll(req.Body)
	if err != nil {
		return err
	}
	if err = req.Body.Close(); err != nil {
		return err
	}
	if err = json.Unmarshal(body, output); err != nil {
		return err
	}

	return nil
}
