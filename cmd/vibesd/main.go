package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"codeberg.org/mutker/vibesd/internal/audio"
	"codeberg.org/mutker/vibesd/internal/capture"
	"codeberg.org/mutker/vibesd/internal/config"
	"codeberg.org/mutker/vibesd/internal/director"
	"codeberg.org/mutker/vibesd/internal/errors"
	"codeberg.org/mutker/vibesd/internal/logger"
	"codeberg.org/mutker/vibesd/internal/metrics"
	"codeberg.org/mutker/vibesd/internal/pid"
	"codeberg.org/mutker/vibesd/internal/pipeline"
	"codeberg.org/mutker/vibesd/internal/server"
	"codeberg.org/mutker/vibesd/internal/telemetry"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"
)

var cfg *config.Config

func init() {
	var err error
	cfg, err = config.Load(os.Args[1:])
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(cfg.LogLevel, logger.IsService()); err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	logger.Debug().Msg("Config loaded")
}

func main() {
	pidPath := pid.Path(cfg.PIDFile)
	if err := pid.Write(pidPath); err != nil {
		var coded errors.Error
		if errors.As(err, &coded) {
			logger.FatalWithCode(coded).Msg("Failed to write PID file")
		}
		logger.Fatal().Err(err).Msg("Failed to write PID file")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go handleSignals(cancel)

	dir := director.New(directorConfig(), metrics.NewCollector(), logger.New("director"))
	source := openCapture()
	recorder := openRecorder()

	p := pipeline.New(pipelineConfig(), source, dir, telemetry.NewHostReader(), recorder, logger.New("pipeline"))
	srv := server.New(server.Config{ListenAddr: cfg.ListenAddr}, p.States(), dir, logger.New("server"))

	logger.Info().
		Str("listen_addr", cfg.ListenAddr).
		Str("ollama_host", cfg.OllamaHost).
		Str("ollama_model", cfg.OllamaModel).
		Bool("capture", source != nil).
		Msg("Starting")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return p.Run(gctx) })
	g.Go(func() error { return srv.ListenAndServe(gctx) })

	if err := g.Wait(); err != nil {
		var coded errors.Error
		if errors.As(err, &coded) {
			logger.ErrorWithCode(coded).Msg("Stopped with error")
		} else {
			logger.Error().Err(err).Msg("Stopped with error")
		}
	}

	cleanup(source, recorder, pidPath)
}

func handleSignals(cancel context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs
	logger.Info().Msg("Received termination signal.")
	cancel()
}

func cleanup(source capture.Source, recorder metrics.Recorder, pidPath string) {
	if source != nil {
		if err := source.Close(); err != nil {
			logger.Error().Err(err).Msg("Failed to close capture source")
		}
	}
	if recorder != nil {
		if err := recorder.Close(); err != nil {
			logger.Error().Err(err).Msg("Failed to close metrics recorder")
		}
	}
	if err := pid.Remove(pidPath); err != nil {
		logger.Error().Err(err).Msg("Failed to remove PID file")
	}
	logger.Info().Msg("Exiting...")
}

// openCapture returns nil when no input is configured or it cannot be
// opened; the pipeline then runs on its heartbeat.
func openCapture() capture.Source {
	format, err := audio.ParseSampleFormat(cfg.SampleFormat)
	if err != nil {
		logger.Error().Err(err).Msg("Invalid sample format")
		return nil
	}

	source, err := capture.Open(capture.Config{
		Input:      cfg.Capture,
		SampleRate: cfg.SampleRate,
		Channels:   cfg.Channels,
		Format:     format,
		BlockSize:  cfg.BlockSize,
	}, logger.New("capture"))
	if err != nil {
		var coded errors.Error
		if errors.As(err, &coded) && coded.Code() == capture.ErrNoSource {
			logger.Info().Msg("No capture input configured")
		} else {
			logger.Error().Err(err).Msg("Failed to open capture input")
		}
		return nil
	}

	return source
}

func openRecorder() metrics.Recorder {
	mcfg := metrics.DefaultConfig()
	mcfg.Enabled = cfg.MetricsEnabled
	mcfg.DBPath = cfg.MetricsDB

	recorder, err := metrics.NewRecorder(mcfg, logger.New("metrics"))
	if err != nil {
		logger.Error().Err(err).Msg("Failed to open metrics database, persistence disabled")
		return nil
	}

	return recorder
}

func directorConfig() director.Config {
	return director.Config{
		Host:             cfg.OllamaHost,
		Model:            cfg.OllamaModel,
		RequestTimeout:   cfg.RequestTimeout,
		RetryAttempts:    cfg.RetryAttempts,
		RetryBase:        cfg.RetryBase,
		BreakerThreshold: cfg.BreakerThreshold,
		BreakerCooldown:  cfg.BreakerCooldown,
		CacheSize:        cfg.CacheSize,
		CacheTTL:         cfg.CacheTTL,
	}
}

func pipelineConfig() pipeline.Config {
	pcfg := pipeline.DefaultConfig()
	pcfg.HeartbeatInterval = cfg.HeartbeatInterval
	pcfg.ConsultInterval = cfg.ConsultInterval
	pcfg.MetricsInterval = cfg.MetricsInterval
	pcfg.BusBuffer = cfg.BusBuffer
	return pcfg
}
