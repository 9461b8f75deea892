package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/billscan/internal/ocr"
	"github.com/sells-group/billscan/internal/pipeline"
	"github.com/sells-group/billscan/internal/session"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP extraction server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		startSweeper(ctx, env.Store, time.Duration(cfg.Session.SweepIntervalMins)*time.Minute)

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: newRouter(env.Pipeline, int64(cfg.Server.MaxUploadMB)<<20),
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			if err := shutdownServer(srv); err != nil {
				zap.L().Warn("server shutdown failed", zap.Error(err))
			}
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

// shutdownServer drains in-flight requests on its own deadline; the signal
// context that triggered the shutdown is already cancelled.
func shutdownServer(srv *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}

func newRouter(p *pipeline.Pipeline, maxUploadBytes int64) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type"},
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Post("/sessions", func(w http.ResponseWriter, r *http.Request) {
		token, err := p.CreateSession(r.Context())
		if err != nil {
			writeError(w, "create_session", "", err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]string{"token": token})
	})

	r.Post("/sessions/{token}/files", func(w http.ResponseWriter, r *http.Request) {
		token := chi.URLParam(r, "token")

		r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
		file, header, err := r.FormFile("file")
		if err != nil {
			writeError(w, "process_file", "", eris.Wrap(errBadUpload, err.Error()))
			return
		}
		defer file.Close()

		docName := filepath.Base(header.Filename)
		accepted, err := processUpload(r, p, token, docName, file)
		if err != nil {
			writeError(w, "process_file", docName, err)
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"document":       docName,
			"accepted_pages": accepted,
		})
	})

	r.Post("/sessions/{token}/aggregate", func(w http.ResponseWriter, r *http.Request) {
		token := chi.URLParam(r, "token")

		var req struct {
			EntityFilter string `json:"entity_filter"`
		}
		if r.Body != nil && r.ContentLength != 0 {
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				writeError(w, "aggregate", "", eris.Wrap(errBadUpload, "invalid request body"))
				return
			}
		}

		final, err := p.Aggregate(r.Context(), token, req.EntityFilter)
		if err != nil {
			writeError(w, "aggregate", "", err)
			return
		}
		writeJSON(w, http.StatusOK, final)
	})

	return r
}

// processUpload spools one multipart upload to scratch space, runs Stage 1
// on it, and appends the result to the session. The scratch file is removed
// before returning, success or failure.
func processUpload(r *http.Request, p *pipeline.Pipeline, token, docName string, file io.Reader) (int, error) {
	dir, err := os.MkdirTemp("", "billscan-upload-")
	if err != nil {
		return 0, eris.Wrap(err, "serve: scratch dir")
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, docName)
	dst, err := os.Create(path)
	if err != nil {
		return 0, eris.Wrap(err, "serve: scratch file")
	}
	if _, err := io.Copy(dst, file); err != nil {
		dst.Close()
		return 0, eris.Wrap(err, "serve: spool upload")
	}
	if err := dst.Close(); err != nil {
		return 0, eris.Wrap(err, "serve: spool upload")
	}

	return p.ProcessFile(r.Context(), token, path)
}

// errBadUpload marks a request the client got wrong at the HTTP level.
var errBadUpload = errors.New("bad request")

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps a pipeline error to a status code and a structured body
// naming the failed operation and, where known, the offending file.
func writeError(w http.ResponseWriter, operation, file string, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, errBadUpload), errors.Is(err, session.ErrInvalidToken):
		status = http.StatusBadRequest
	case errors.Is(err, ocr.ErrUnsupportedMediaType):
		status = http.StatusUnsupportedMediaType
	case errors.Is(err, session.ErrUnknownSession):
		status = http.StatusNotFound
	case errors.Is(err, session.ErrSessionFinalizing), errors.Is(err, pipeline.ErrNothingToAggregate):
		status = http.StatusConflict
	case errors.Is(err, ocr.ErrExtractionService), errors.Is(err, pipeline.ErrAggregationFailed):
		status = http.StatusBadGateway
	}

	zap.L().Warn("request failed",
		zap.String("operation", operation),
		zap.String("file", file),
		zap.Int("status", status),
		zap.Error(err))

	body := map[string]string{
		"error":     err.Error(),
		"operation": operation,
	}
	if file != "" {
		body["file"] = file
	}
	writeJSON(w, status, body)
}
