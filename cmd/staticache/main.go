package main

import (
	"flag"
	"io"
	"net/http"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/staticache/staticache"
	"github.com/staticache/staticache/cache"
)

var (
	// CLI flags
	configFlag         string
	rootFlag           string
	addrFlag           string
	portFlag           int
	cacheBackendFlag   string
	cachePathFlag      string
	adminFlag          string
	verbosityTraceFlag bool
	logFilenameFlag    string

	// this is set by goreleaser
	version string
)

func init() {
	flag.StringVar(&configFlag, "config", "", "YAML config file to load")
	flag.StringVar(&rootFlag, "root", "", "Document root to serve files from")
	flag.StringVar(&addrFlag, "addr", "", "Address to listen on")
	flag.IntVar(&portFlag, "port", 0, "Port to listen on")
	flag.StringVar(&cacheBackendFlag, "cache", "", "Cache backend: memory, sqlite or leveldb")
	flag.StringVar(&cachePathFlag, "cache-path", "", "Cache DB file or directory (for sqlite/leveldb)")
	flag.StringVar(&adminFlag, "admin", "", "Admin endpoint listen address (disabled if empty)")
	flag.BoolVar(&verbosityTraceFlag, "vv", false, "Verbosity: trace logging")
	flag.StringVar(&logFilenameFlag, "log-file", "", "Log file to use (in addition to stdout)")

	if version == "" {
		version = "DEV"
	}
}

func main() {
	flag.Parse()

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

	cfg := staticache.DefaultConfig()
	if configFlag != "" {
		loaded, err := staticache.LoadConfig(configFlag)
		if err != nil {
			log.Fatal().Err(err).Str("file", configFlag).Msg("Could not load config")
		}
		cfg = loaded
	}

	// explicit flags override the config file
	if rootFlag != "" {
		cfg.Root = rootFlag
	}
	if addrFlag != "" {
		cfg.Listen.Addr = addrFlag
	}
	if portFlag != 0 {
		cfg.Listen.Port = portFlag
	}
	if cacheBackendFlag != "" {
		cfg.Cache.Backend = cacheBackendFlag
	}
	if cachePathFlag != "" {
		cfg.Cache.Path = cachePathFlag
	}
	if adminFlag != "" {
		cfg.Admin.Addr = adminFlag
	}

	var provider cache.CacheProvider
	switch cfg.Cache.Backend {
	case "", "memory":
		provider = cache.NewMemCache()
	case "sqlite":
		provider = cache.NewSQLiteCache(cfg.Cache.Path)
	case "leveldb":
		path := cfg.Cache.Path
		if path == "" {
			path = "./cache.ldb"
		}
		ldb, err := cache.NewLevelDBCache(path)
		if err != nil {
			log.Fatal().Err(err).Str("path", path).Msg("Could not open leveldb cache")
		}
		defer ldb.Close()
		provider = ldb
	default:
		log.Fatal().Str("backend", cfg.Cache.Backend).Msg("Unknown cache backend")
	}

	srv := staticache.CreateServer(staticache.Config{
		Root:      cfg.Root,
		Locked:    cfg.Locked,
		Cache:     provider,
		Logger:    &log.Logger,
		Workers:   cfg.Workers,
		QueueSize: cfg.QueueSize,
	})

	if cfg.Admin.Addr != "" {
		go func() {
			log.Info().Msgf("Admin endpoint on %s", cfg.Admin.Addr)
			if err := http.ListenAndServe(cfg.Admin.Addr, srv.AdminHandler()); err != nil {
				log.Error().Err(err).Msg("Admin server stopped")
			}
		}()
	}

	log.Info().Msgf("Serving %s on %s:%d", cfg.Root, cfg.Listen.Addr, cfg.Listen.Port)
	if err := srv.ListenAndServe(cfg.Listen.Addr, cfg.Listen.Port); err != nil {
		log.Fatal().Err(err).Msg("Server stopped")
	}
}
