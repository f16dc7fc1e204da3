package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"fortean/internal/api"
	"fortean/internal/research"
	"fortean/ports"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the research status API with live session streaming",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		// Sessions triggered here narrate to the store and to connected SSE
		// clients at the same time.
		hub := api.NewHub()
		pipe, err := initPipeline(env, teeSink{env.Log, hub})
		if err != nil {
			return err
		}

		srv := api.NewServer(env.Sessions, env.Findings, env.Log, hub)
		mux := buildMux(ctx, pipe, srv.Router())

		return startServer(ctx, mux, resolvePort(servePort, cfg.Server.Port))
	},
}

// resolvePort picks the flag value when set, the config value otherwise.
func resolvePort(flag, fromConfig int) int {
	if flag != 0 {
		return flag
	}
	return fromConfig
}

// buildMux assembles the serve handler: the status API router plus the
// webhook that triggers research sessions. A nil pipeline leaves the webhook
// registered but inert, which keeps handler tests free of store setup.
func buildMux(ctx context.Context, pipe *research.Pipeline, statusAPI http.Handler) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /webhook/research", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Type string `json:"type"`
			From string `json:"from"`
			To   string `json:"to"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
			http.Error(w, `{"error":"invalid request body"}`, http.StatusBadRequest)
			return
		}

		filter, err := recordFilter(req.Type, req.From, req.To)
		if err != nil {
			http.Error(w, `{"error":"invalid filter"}`, http.StatusBadRequest)
			return
		}

		// Run the session asynchronously
		go func() {
			if pipe == nil {
				return
			}
			session, err := pipe.Run(ctx, filter)
			if err != nil {
				zap.L().Error("webhook session failed",
					zap.String("session", string(session.ID())),
					zap.Error(err),
				)
				return
			}
			confirmed, rejected, _ := session.Counts()
			zap.L().Info("webhook session complete",
				zap.String("session", string(session.ID())),
				zap.Int("confirmed", confirmed),
				zap.Int("rejected", rejected),
			)
		}()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(map[string]string{"status": "accepted"})
	})

	if statusAPI != nil {
		mux.Handle("/", statusAPI)
	}

	return mux
}

// startServer runs the HTTP server until ctx is cancelled, then shuts it
// down. The shutdown timeout keeps open SSE streams from pinning the
// process.
func startServer(ctx context.Context, handler http.Handler, port int) error {
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: handler,
	}

	go func() {
		<-ctx.Done()
		zap.L().Info("shutting down server")
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutCtx)
	}()

	zap.L().Info("starting server", zap.Int("port", port))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return eris.Wrap(err, "server listen")
	}

	return nil
}

// teeSink fans one session entry out to every sink. Each sink sees every
// entry even when another fails; the first failure is reported.
type teeSink []ports.SessionSink

func (t teeSink) Emit(ctx context.Context, entry ports.SessionEntry) error {
	var first error
	for _, sink := range t {
		if err := sink.Emit(ctx, entry); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
