package main

import (
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/maxpert/kvstream/admin"
	"github.com/maxpert/kvstream/aggregator"
	"github.com/maxpert/kvstream/aggregator/wordcount"
	"github.com/maxpert/kvstream/cfg"
	"github.com/maxpert/kvstream/common"
	"github.com/maxpert/kvstream/dispatcher"
	"github.com/maxpert/kvstream/filter"
	"github.com/maxpert/kvstream/pattern"
	"github.com/maxpert/kvstream/protocol"
	"github.com/maxpert/kvstream/publisher"
	_ "github.com/maxpert/kvstream/publisher/sink"
	"github.com/maxpert/kvstream/store"
	"github.com/maxpert/kvstream/telemetry"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	flag.Parse()

	// Load configuration
	err := cfg.Load(*cfg.ConfigPathFlag)
	if err != nil {
		panic(err)
	}

	if err := cfg.Validate(); err != nil {
		panic(fmt.Sprintf("Invalid configuration: %v", err))
	}

	// Setup logging
	var writer io.Writer = zerolog.NewConsoleWriter()
	if cfg.Config.Logging.Format == "json" {
		writer = os.Stdout
	}
	gLog := zerolog.New(writer).
		With().
		Timestamp().
		Uint64("node_id", cfg.Config.NodeID).
		Logger()

	if cfg.Config.Logging.Verbose {
		log.Logger = gLog.Level(zerolog.DebugLevel)
	} else {
		log.Logger = gLog.Level(zerolog.InfoLevel)
	}

	log.Info().Msg("kvstream - streaming aggregation proxy for Redis")
	log.Debug().Msg("Initializing telemetry")
	telemetry.InitializeTelemetry()

	if err := pattern.SetCacheSize(cfg.Config.Streaming.PatternCacheSize); err != nil {
		log.Fatal().Err(err).Msg("Failed to size pattern cache")
	}

	// Backing store
	rc := cfg.Config.Redis
	backing := store.NewRedisStore(store.Config{
		Address:      rc.Address,
		Password:     rc.Password,
		DB:           rc.DB,
		PoolSize:     rc.PoolSize,
		DialTimeout:  time.Duration(rc.DialTimeoutMS) * time.Millisecond,
		ReadTimeout:  time.Duration(rc.ReadTimeoutMS) * time.Millisecond,
		WriteTimeout: time.Duration(rc.WriteTimeoutMS) * time.Millisecond,
	})
	defer backing.Close()

	// Aggregators
	sc := cfg.Config.Streaming
	functions, err := aggregator.NewTable(wordcount.New(wordcount.Options{
		CounterKey:      sc.CounterKey,
		Channel:         sc.Channel,
		MaxMessageBytes: sc.MaxMessageBytes,
		SkipEmpty:       sc.SkipEmptyWords,
	}))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build aggregator table")
	}

	// External sinks fed from the outbox
	var outbox publisher.Appender
	var sinks *publisher.Registry
	if len(cfg.Config.Sinks) > 0 {
		sinks, err = publisher.NewRegistry(publisher.RegistryConfig{
			DataDir:     cfg.Config.DataDir,
			NodeID:      cfg.Config.NodeID,
			SinkConfigs: cfg.Config.Sinks,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize publisher registry")
		}
		if err := sinks.Start(); err != nil {
			log.Fatal().Err(err).Msg("Failed to start publisher registry")
		}
		defer sinks.Stop()
		outbox = sinks
	}

	d, err := dispatcher.New(dispatcher.Config{
		Registry:  filter.NewRegistry(),
		Functions: functions,
		Backend:   backing,
		Counters:  backing,
		Notifier:  publisher.NewBroadcaster(backing, outbox),
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize dispatcher")
	}

	if err := declareBootstrapFilters(d, cfg.Config.Filters); err != nil {
		log.Fatal().Err(err).Msg("Failed to declare bootstrap filters")
	}

	collector := telemetry.NewMetricsCollector(d.Registry(), 15*time.Second)
	if sinks != nil {
		collector.WithLags(sinks)
	}
	collector.Start()
	defer collector.Stop()

	var routes func(*http.ServeMux)
	if cfg.Config.Admin.Enabled {
		var reporter admin.SinkReporter
		if sinks != nil {
			reporter = sinks
		}
		handlers := admin.NewAdminHandlers(d, backing, sc.CounterKey, reporter)
		routes = func(mux *http.ServeMux) { admin.RegisterRoutes(mux, handlers) }
	}

	server, err := protocol.NewServer(protocol.Config{
		Address:        fmt.Sprintf("%s:%d", cfg.Config.Server.BindAddress, cfg.Config.Server.Port),
		MaxConnections: cfg.Config.Server.MaxConnections,
		CommandTimeout: time.Duration(cfg.Config.Server.CommandTimeoutMS) * time.Millisecond,
		Handler:        d,
		Backend:        backing,
		MetricsHandler: telemetry.GetMetricsHandler(),
		HTTPRoutes:     routes,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize RESP server")
	}
	if err := server.Start(); err != nil {
		log.Fatal().Err(err).Msg("Failed to start RESP server")
	}
	defer server.Stop()

	log.Info().
		Str("address", server.Addr().String()).
		Str("redis", rc.Address).
		Str("channel", sc.Channel).
		Int("filters", d.Registry().Len()).
		Int("sinks", len(cfg.Config.Sinks)).
		Msg("kvstream is operational")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	s := <-sig
	log.Info().Str("signal", s.String()).Msg("Shutting down")
}

// declareBootstrapFilters applies [[filters]] as STREAM ADD would. Type names
// are checked here too; cfg.Validate may not have run.
func declareBootstrapFilters(d *dispatcher.Dispatcher, filters []cfg.FilterConfiguration) error {
	for i, f := range filters {
		keyType, ok := common.ParseKeyType(f.Type)
		if !ok {
			return fmt.Errorf("filters[%d]: %w: %q", i, filter.ErrUnsupportedKeyType, f.Type)
		}

		added, err := d.Declare(keyType, f.Function, f.Key, f.Field)
		if err != nil {
			return fmt.Errorf("filters[%d] %s %s %s: %w", i, f.Type, f.Function, f.Key, err)
		}
		log.Info().
			Str("type", f.Type).
			Str("function", f.Function).
			Str("key", f.Key).
			Str("field", f.Field).
			Bool("added", added).
			Msg("Declared bootstrap filter")
	}
	return nil
}
