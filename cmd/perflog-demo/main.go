// Command perflog-demo serves a few HTTP routes instrumented by perflog so
// the records it writes can be inspected under the configured log directory.
package main

import (
	"context"
	"encoding/json"
	stderrs "errors"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/Station-Manager/perflog"
	"github.com/Station-Manager/perflog/autoinstrument"
	"github.com/Station-Manager/perflog/instrument"
	"github.com/Station-Manager/utils"
	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/tebeka/atexit"
	"go.uber.org/zap"
)

const envConfig = "PERFLOG_CONFIG"

var (
	configPath string
	addr       string
	logDir     string
)

var rootCmd = &cobra.Command{
	Use:   "perflog-demo",
	Short: "Serve instrumented demo routes and write their records to disk.",
	Long: `perflog-demo serves /work, /fail, /panic and /stats through the auto-instrumentation ` +
		`patcher. POST /reload re-reads the configuration file and applies it without a restart.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(cmd.Context())
	},
}

func init() {
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "", "YAML configuration file (default $"+envConfig+")")
	rootCmd.Flags().StringVar(&addr, "addr", ":8080", "listen address")
	rootCmd.Flags().StringVar(&logDir, "log-dir", "logs", "log directory when no configuration file is given")
}

func main() {
	_ = godotenv.Load()
	if err := rootCmd.Execute(); err != nil {
		atexit.Exit(1)
	}
	atexit.Exit(0)
}

func loadConfig() (perflog.Config, error) {
	path := configPath
	if path == "" {
		path = os.Getenv(envConfig)
	}
	if path != "" {
		return perflog.LoadConfig(path)
	}

	cfg := perflog.DefaultConfig(logDir)
	exeName, err := utils.ExecName(true)
	if err != nil {
		return perflog.Config{}, fmt.Errorf("failed to get executable name: %w", err)
	}
	app := cfg.Sinks[perflog.LoggerApp]
	app.Path = exeName + ".log"
	cfg.Sinks[perflog.LoggerApp] = app
	return cfg, nil
}

func serve(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	m := perflog.NewManager()
	if err = m.Setup(cfg); err != nil {
		return err
	}
	perflog.SetDefault(m)
	atexit.Register(func() {
		if err := m.Cleanup(); err != nil {
			fmt.Fprintln(os.Stderr, err)
		}
	})

	log := m.Logger(perflog.LoggerApp)
	in := instrument.New(m)
	router := mux.NewRouter()

	p := autoinstrument.New(in, autoinstrument.MuxRegistrar{Router: router},
		autoinstrument.WithOptions(instrument.Options{IncludeArguments: true, IncludeIO: true}))
	p.Enable()

	jobs := m.Zap("scheduler")
	p.HandleFunc("/work", func(w http.ResponseWriter, r *http.Request) {
		n, _ := strconv.Atoi(r.URL.Query().Get("n"))
		if n <= 0 {
			n = 100000
		}
		sum := 0
		for i := 0; i < n; i++ {
			sum += rand.Intn(10)
		}
		jobs.Debug("work done", zap.Int("n", n), zap.Int("sum", sum))
		_, _ = fmt.Fprintf(w, "%d\n", sum)
	})
	p.HandleFunc("/fail", func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "dependency unavailable", http.StatusServiceUnavailable)
	})
	p.HandleFunc("/panic", func(http.ResponseWriter, *http.Request) {
		panic("demo panic")
	})
	p.Disable()

	router.HandleFunc("/stats", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(m.Stats())
	}).Methods(http.MethodGet)
	router.HandleFunc("/reload", func(w http.ResponseWriter, r *http.Request) {
		next, err := loadConfig()
		if err == nil {
			err = m.Reconfigure(next)
		}
		if err != nil {
			log.ErrorWith().Ctx(r.Context()).Err(err).Msg("reload failed")
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		log.InfoWith().Ctx(r.Context()).Msg("configuration reloaded")
		w.WriteHeader(http.StatusNoContent)
	}).Methods(http.MethodPost)

	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.InfoWith().Str("addr", addr).Msg("listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err = <-errCh:
		if stderrs.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	log.InfoWith().Msg("shutting down")
	return srv.Shutdown(shutdownCtx)
}
