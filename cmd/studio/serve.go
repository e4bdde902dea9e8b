package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/satindergrewal/melodai/internal/api"
	"github.com/satindergrewal/melodai/internal/audio"
	"github.com/satindergrewal/melodai/internal/backing"
	"github.com/satindergrewal/melodai/internal/config"
	"github.com/satindergrewal/melodai/internal/device"
	"github.com/satindergrewal/melodai/internal/mixer"
	"github.com/satindergrewal/melodai/internal/stream"
	"github.com/satindergrewal/melodai/internal/transport"
	"github.com/satindergrewal/melodai/internal/visualizer"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the studio server",
	Long: `Run the HTTP API and the live streams.

Mixed audio is served as MP3 on /stream, Opus over WebRTC via /offer and
as spectrum frames on /ws/visualizer. Set STUDIO_LOCAL_OUTPUT=true to also
play through the sound card.

Example:
  GEMINI_API_KEY=... studio serve --port 8080`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	if port > 0 {
		cfg.Port = port
	}

	logger, err := newLogger(cfg.LogLevel, cfg.LogDev)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	logger.Info("melodai starting up", zap.String("version", version))

	// Mix engine and real-time pump
	engineCfg := mixer.DefaultConfig()
	if !cfg.Compressor {
		engineCfg.Compressor = nil
	}
	engine := mixer.NewEngine(engineCfg, logger.Named("mixer"))
	output := mixer.NewOutput(engine, logger.Named("mixer"))
	go output.Run(ctx)

	// Fan-out to every stream, the visualizer and the sound card
	broadcaster := stream.NewBroadcaster()
	go broadcaster.Run(ctx, output.Frames())

	fetcher := backing.NewFetcher(cfg.FetchTimeout, logger.Named("backing"))
	st, catalog, err := newStudio(ctx, cfg, fetcher, logger)
	if err != nil {
		return err
	}

	var local *device.Output
	if cfg.LocalOutput {
		local = device.New(broadcaster, logger.Named("device"))
		defer local.Close()
	}

	tcfg := transport.Config{
		VocalGain:        cfg.VocalGain,
		InstrumentalGain: cfg.InstrumentalGain,
	}
	if local != nil {
		// The sound card opens on the first play request, so a headless
		// server never touches audio hardware until it has to.
		tcfg.OpenOutput = local.Activate
	}
	ctrl := transport.NewController(engine, output, st, tcfg, logger.Named("transport"))
	defer ctrl.Stop()

	viz := visualizer.New(broadcaster, audio.Channels, func() bool {
		return ctrl.State() == transport.Playing
	}, logger.Named("visualizer"))
	go viz.Run(ctx)

	webrtcHandler := stream.NewWebRTCHandler(broadcaster, stream.WebRTCConfig{
		Bitrate:    cfg.OpusBitrate,
		ICEServers: cfg.ICEServers,
	}, logger.Named("webrtc"))
	defer webrtcHandler.Close()

	mp3Handler := stream.NewHTTPHandler(broadcaster, stream.HTTPConfig{
		Name:    cfg.StreamName,
		Bitrate: cfg.MP3Bitrate,
	}, logger.Named("http-stream"))

	srv := api.New(api.Config{Port: cfg.Port}, api.Deps{
		Generator:  st,
		Tracks:     st.Library(),
		Transport:  ctrl,
		Catalog:    catalog,
		Stream:     mp3Handler,
		WebRTC:     webrtcHandler,
		Visualizer: viz,
		Listeners:  broadcaster.ListenerCount,
	}, logger.Named("api"))

	logger.Info("melodai live",
		zap.Int("port", cfg.Port),
		zap.Strings("genres", catalog.Genres()),
		zap.Bool("compressor", cfg.Compressor),
		zap.Bool("local_output", cfg.LocalOutput))

	if err := srv.Run(ctx); err != nil {
		return fmt.Errorf("serve: %w", err)
	}
	return nil
}
