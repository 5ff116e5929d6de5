package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/always-cache/shellcache"
	"github.com/always-cache/shellcache/cache"

	"github.com/dustin/go-humanize"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
	"github.com/rs/zerolog/log"
)

var (
	// CLI flags
	configFilenameFlag string
	envFilenameFlag    string
	portFlag           int
	originFlag         string
	hostFlag           string
	dbFilenameFlag     string
	providerFlag       string
	cacheVersionFlag   string
	verbosityTraceFlag bool
	logFilenameFlag    string

	// this is set by goreleaser
	version string
)

func init() {
	flag.StringVar(&configFilenameFlag, "config", "shellcache.yml", "Config file to use")
	flag.StringVar(&envFilenameFlag, "env", ".env", "Environment file to load if present")
	flag.IntVar(&portFlag, "port", 0, "Port to listen on (overrides config)")
	flag.StringVar(&originFlag, "origin", "", "Origin URL to proxy to (overrides config)")
	flag.StringVar(&hostFlag, "host", "", "Hostname of origin")
	flag.StringVar(&dbFilenameFlag, "db", "", "Cache DB file or directory (overrides config)")
	flag.StringVar(&providerFlag, "provider", "", "Storage provider: memory, sqlite, leveldb or valkey (overrides config)")
	flag.StringVar(&cacheVersionFlag, "version", "", "Application version (overrides config)")
	flag.BoolVar(&verbosityTraceFlag, "vv", false, "Verbosity: trace logging")
	flag.StringVar(&logFilenameFlag, "log-file", "", "Log file to use (in addition to stdout)")

	if version == "" {
		version = "DEV"
	}
}

func main() {
	flag.Parse()
	setupLogging()

	// environment variables may be used for values like the valkey address
	if err := godotenv.Load(envFilenameFlag); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Fatal().Err(err).Msg("Could not load environment file")
	}

	config, err := loadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Could not load config")
	}

	store, err := shellcache.OpenStore(config.Storage)
	if err != nil {
		log.Fatal().Err(err).Str("provider", config.Storage.Provider).Msg("Could not open cache storage")
	}

	workerConfig, err := config.WorkerConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Could not create worker config")
	}
	transport := shellcache.OriginTransport(config.Host)
	workerConfig.Cache = store
	workerConfig.Transport = transport
	workerConfig.Logger = &log.Logger

	worker, err := shellcache.CreateWorker(workerConfig)
	if err != nil {
		log.Fatal().Err(err).Msg("Could not create worker")
	}

	controller := shellcache.NewController(transport, &log.Logger)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := controller.Deploy(ctx, worker); err != nil {
		log.Error().Err(err).Msg("Worker not deployed, requests pass through uncached")
	}

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", config.Port),
		Handler: router(controller, config),
	}
	go func() {
		log.Info().Msgf("Proxying port %v to %s (with hostname '%s')", config.Port, config.Origin, config.Host)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Could not shut down server gracefully")
	}
	controller.Wait()
	if err := store.Close(); err != nil {
		log.Error().Err(err).Msg("Could not close cache storage")
	}
}

func setupLogging() {
	// set log level
	logLevel := zerolog.DebugLevel
	if verbosityTraceFlag {
		logLevel = zerolog.TraceLevel
	}

	// set up log output to stdout
	// also output to logfile if specified
	logOutputs := make([]io.Writer, 0)
	logOutputs = append(logOutputs, zerolog.ConsoleWriter{Out: os.Stdout})
	if logFilenameFlag != "" {
		if logFileOutput, err := os.OpenFile(logFilenameFlag, os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0644); err != nil {
			log.Fatal().Err(err).Msg("Cannot open log file")
		} else {
			logOutputs = append(logOutputs, logFileOutput)
		}
	}
	multiWriter := zerolog.MultiLevelWriter(logOutputs...)
	log.Logger = log.Level(logLevel).Output(multiWriter).
		With().Str("version", version).Logger()
}

// loadConfig reads the config file and applies the flag overrides.
// Without a config file, the flags alone must describe the setup.
func loadConfig() (shellcache.FileConfig, error) {
	config, err := shellcache.LoadConfig(configFilenameFlag)
	if errors.Is(err, os.ErrNotExist) {
		log.Warn().Str("file", configFilenameFlag).Msg("Config file not found, using flags only")
		config = shellcache.FileConfig{}
	} else if err != nil {
		return config, err
	}

	if originFlag != "" {
		config.Origin = originFlag
	}
	if hostFlag != "" {
		config.Host = hostFlag
	}
	if portFlag != 0 {
		config.Port = portFlag
	}
	if cacheVersionFlag != "" {
		config.Version = cacheVersionFlag
	}
	if providerFlag != "" && providerFlag != config.Storage.Provider {
		config.Storage.Provider = providerFlag
		// the default path of the previous provider does not apply
		config.Storage.Path = ""
	}
	if dbFilenameFlag != "" {
		config.Storage.Path = dbFilenameFlag
	}
	if config.Storage.Address == "" {
		config.Storage.Address = os.Getenv("SHELLCACHE_VALKEY_ADDR")
	}
	config.SetDefaults()
	return config, config.Validate()
}

func router(controller *shellcache.Controller, config shellcache.FileConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(hlog.NewHandler(log.Logger))
	r.Use(hlog.RemoteAddrHandler("ip"))
	r.Use(hlog.RequestIDHandler("reqId", "Request-Id"))
	r.Use(hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		hlog.FromRequest(r).Trace().
			Str("method", r.Method).
			Stringer("url", r.URL).
			Int("status", status).
			Int("size", size).
			Dur("duration", duration).
			Msg("Request handled")
	}))

	r.Route("/.shellcache", func(r chi.Router) {
		r.Get("/state", func(w http.ResponseWriter, r *http.Request) {
			state := map[string]interface{}{"state": "none"}
			if worker := controller.Active(); worker != nil {
				ns := worker.Namespaces()
				state = map[string]interface{}{
					"state":      worker.State().String(),
					"version":    ns.Version,
					"namespaces": ns.All(),
				}
			}
			writeJSON(w, http.StatusOK, state)
		})
		r.Get("/namespaces", func(w http.ResponseWriter, r *http.Request) {
			worker := controller.Active()
			if worker == nil {
				writeJSON(w, http.StatusConflict, map[string]string{"error": "no active worker"})
				return
			}
			stats, err := worker.Stats()
			if err != nil {
				hlog.FromRequest(r).Error().Err(err).Msg("Could not read namespace stats")
				writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
				return
			}
			type namespaceInfo struct {
				shellcache.NamespaceStats
				Size string `json:"size"`
			}
			infos := make([]namespaceInfo, 0, len(stats))
			for _, s := range stats {
				infos = append(infos, namespaceInfo{NamespaceStats: s, Size: humanize.Bytes(uint64(s.Bytes))})
			}
			writeJSON(w, http.StatusOK, infos)
		})
		r.Get("/namespaces/{name}", func(w http.ResponseWriter, r *http.Request) {
			worker := controller.Active()
			if worker == nil {
				writeJSON(w, http.StatusConflict, map[string]string{"error": "no active worker"})
				return
			}
			entries, err := worker.Entries(chi.URLParam(r, "name"))
			if errors.Is(err, cache.ErrorInvalidNamespace) {
				writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
				return
			}
			if err != nil {
				hlog.FromRequest(r).Error().Err(err).Msg("Could not list namespace entries")
				writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
				return
			}
			writeJSON(w, http.StatusOK, entries)
		})
		r.Post("/activate", func(w http.ResponseWriter, r *http.Request) {
			worker := controller.Active()
			if worker == nil {
				writeJSON(w, http.StatusConflict, map[string]string{"error": "no active worker"})
				return
			}
			if err := worker.Activate(r.Context()); err != nil {
				hlog.FromRequest(r).Error().Err(err).Msg("Could not activate worker")
				writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
				return
			}
			writeJSON(w, http.StatusOK, map[string]string{"state": worker.State().String()})
		})
	})

	origin, _ := config.WorkerConfig()
	r.Handle("/*", shellcache.NewProxy(origin.OriginURL, config.Host, controller, &log.Logger))
	return r
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Could not write response body to client")
	}
}
