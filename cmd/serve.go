package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/mktdata-cli/internal/model"
	"github.com/sells-group/mktdata-cli/internal/reconcile"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve cached market data over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx, "serve")
		if err != nil {
			return err
		}
		defer env.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: buildRouter(env),
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			srv.Shutdown(ctx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func buildRouter(env *queryEnv) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "OPTIONS"},
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/v1/ref", func(w http.ResponseWriter, req *http.Request) {
		q := req.URL.Query()
		tickers, fields := q["ticker"], q["field"]
		if len(tickers) == 0 || len(fields) == 0 {
			writeError(w, http.StatusBadRequest, "ticker and field query params are required")
			return
		}

		rows, err := env.Engine.Reference(req.Context(), tickers, fields,
			reconcile.RefOptions{Cache: true})
		if err != nil {
			zap.L().Error("ref query failed", zap.Error(err))
			writeError(w, http.StatusBadGateway, "upstream query failed")
			return
		}
		writeJSON(w, http.StatusOK, rows)
	})

	r.Get("/v1/bars", func(w http.ResponseWriter, req *http.Request) {
		q := req.URL.Query()
		ticker := q.Get("ticker")
		if ticker == "" {
			writeError(w, http.StatusBadRequest, "ticker query param is required")
			return
		}
		date, err := time.Parse("2006-01-02", q.Get("date"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "date query param must be YYYY-MM-DD")
			return
		}

		opts := reconcile.BarOptions{Session: q.Get("session")}
		if ev := q.Get("event"); ev != "" {
			opts.Event = model.EventType(ev)
		}

		bars, err := env.Engine.Intraday(req.Context(), ticker, date, opts)
		if err != nil {
			zap.L().Error("bar query failed", zap.Error(err))
			writeError(w, http.StatusBadGateway, "upstream query failed")
			return
		}
		writeJSON(w, http.StatusOK, bars)
	})

	r.Get("/v1/stats", func(w http.ResponseWriter, req *http.Request) {
		lookback := 24 * time.Hour
		if lb := req.URL.Query().Get("lookback"); lb != "" {
			d, err := time.ParseDuration(lb)
			if err != nil {
				writeError(w, http.StatusBadRequest, "lookback must be a duration like 24h")
				return
			}
			lookback = d
		}

		stats, err := env.Store.GetStats(req.Context(), lookback)
		if err != nil {
			zap.L().Error("stats query failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "stats unavailable")
			return
		}
		writeJSON(w, http.StatusOK, stats)
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
