// ABOUTME: The play command
// ABOUTME: Builds the audio engine, session controller, app loop and optional TUI, API and MQTT
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/Resonate-Protocol/resonate-radio/internal/app"
	"github.com/Resonate-Protocol/resonate-radio/internal/config"
	"github.com/Resonate-Protocol/resonate-radio/internal/discovery"
	"github.com/Resonate-Protocol/resonate-radio/internal/logging"
	"github.com/Resonate-Protocol/resonate-radio/internal/metrics"
	"github.com/Resonate-Protocol/resonate-radio/internal/publish"
	"github.com/Resonate-Protocol/resonate-radio/internal/remote"
	"github.com/Resonate-Protocol/resonate-radio/internal/ui"
	"github.com/Resonate-Protocol/resonate-radio/internal/version"
	"github.com/Resonate-Protocol/resonate-radio/pkg/audio/output"
	"github.com/Resonate-Protocol/resonate-radio/pkg/audio/wave"
	"github.com/Resonate-Protocol/resonate-radio/pkg/metadata"
	"github.com/Resonate-Protocol/resonate-radio/pkg/stream"
	"github.com/Resonate-Protocol/resonate-radio/pkg/streaming"
)

const shutdownTimeout = 2 * time.Second

func newPlayCommand(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "play [url]",
		Short: "Play an internet radio stream",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load(cmd)
			if err != nil {
				return err
			}
			if len(args) == 1 {
				cfg.Stream.URL = args[0]
			}
			return play(cmd.Context(), cfg)
		},
	}

	flags := cmd.Flags()
	flags.Float64("gain", 0, "Stream gain between 0 and 1")
	flags.Int("buffer-ms", 0, "Network buffer length in milliseconds")
	flags.Int("decode-buffer-ms", 0, "Decoded audio buffer length in milliseconds")
	flags.String("remote", "", "Enable the remote API on this address")
	flags.String("mqtt-broker", "", "Publish metadata to this MQTT broker")

	bind(opts.v, flags.Lookup("gain"), "stream.gain")
	bind(opts.v, flags.Lookup("buffer-ms"), "stream.buffer_ms")
	bind(opts.v, flags.Lookup("decode-buffer-ms"), "stream.decode_buffer_ms")
	bind(opts.v, flags.Lookup("remote"), "remote.addr")
	bind(opts.v, flags.Lookup("mqtt-broker"), "mqtt.broker")

	cmd.PreRun = func(cmd *cobra.Command, _ []string) {
		if cmd.Flags().Changed("remote") {
			opts.v.Set("remote.enabled", true)
		}
		if cmd.Flags().Changed("mqtt-broker") {
			opts.v.Set("mqtt.enabled", true)
		}
	}

	return cmd
}

func play(parent context.Context, cfg *config.Config) error {
	closeLog, err := logging.Setup(logging.Options{
		Level:   cfg.Log.Level,
		File:    cfg.Log.File,
		Console: !cfg.TUI,
	})
	if err != nil {
		return err
	}
	defer func() { _ = closeLog() }()

	log.Info().
		Str("version", version.Version).
		Str("url", cfg.Stream.URL).
		Str("output", cfg.Audio.Output).
		Msg("Starting " + version.Product)

	out, err := output.New(cfg.Audio.Output)
	if err != nil {
		return err
	}

	sys := stream.NewSystem(stream.Config{
		Output:         out,
		SampleRate:     cfg.Audio.SampleRate,
		Channels:       cfg.Audio.Channels,
		MaxVoices:      cfg.Audio.MaxVoices,
		UserAgent:      cfg.Stream.UserAgent + "/" + version.Version,
		ConnectTimeout: cfg.Stream.ConnectTimeout,
	})

	recorder, err := metrics.New()
	if err != nil {
		return err
	}

	maxRetries := cfg.Stream.MaxRetries
	if maxRetries == 0 {
		maxRetries = -1
	}
	ctrl := streaming.New(streaming.Config{
		Opener:           sys,
		Wave:             wave.New(cfg.Audio.WaveSize),
		Recorder:         recorder,
		UnpauseThreshold: cfg.Stream.UnpauseThreshold,
		MaxRetries:       maxRetries,
	})
	ctrl.SetBufferSizes(cfg.Stream.BufferMs, cfg.Stream.DecodeBufferMs)

	player := app.New(app.Config{
		Controller:   ctrl,
		Engine:       sys,
		TickInterval: cfg.TickInterval,
		WaveSamples:  cfg.Audio.WaveSize / 2,
		URL:          cfg.Stream.URL,
		Gain:         float32(cfg.Stream.Gain),
		Peak:         recorder,
	})

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.MQTT.Enabled {
		pub := publish.New(publish.Config{
			Broker:   cfg.MQTT.Broker,
			Topic:    cfg.MQTT.Topic,
			Username: cfg.MQTT.Username,
			Password: cfg.MQTT.Password,
		})
		if err := pub.Connect(); err != nil {
			log.Warn().Err(err).Str("broker", cfg.MQTT.Broker).Msg("MQTT broker unavailable, will keep retrying")
		}
		defer pub.Disconnect()

		conn := player.OnMetadata(pub.Handle)
		defer conn.Disconnect()
		go pub.Run(ctx)
	}

	if cfg.Remote.Enabled {
		srv := remote.New(remote.Config{
			Addr:    cfg.Remote.Addr,
			Player:  player,
			Metrics: recorder.Handler(),
		})
		if err := srv.Start(); err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				log.Warn().Err(err).Msg("Remote API shutdown failed")
			}
		}()

		if cfg.Remote.Advertise {
			mgr := discovery.NewManager(discovery.Config{
				ServiceName: serviceName(cfg.Remote.Name),
				Port:        srv.Port(),
				Version:     version.Version,
			})
			if err := mgr.Advertise(); err != nil {
				log.Warn().Err(err).Msg("mDNS advertisement failed")
			} else {
				defer func() { _ = mgr.Stop() }()
			}
		}
	}

	if !cfg.TUI {
		player.OnMetadata(logMetadata)
		return player.Run(ctx)
	}

	errc := make(chan error, 1)
	go func() { errc <- player.Run(ctx) }()

	prog := ui.Run(player)
	updates, unsubscribe := player.Subscribe()
	defer unsubscribe()
	go ui.Forward(prog, updates, player.Done())
	go func() {
		<-player.Done()
		prog.Quit()
	}()

	if _, err := prog.Run(); err != nil {
		stop()
		<-errc
		return fmt.Errorf("TUI failed: %w", err)
	}

	stop()
	return <-errc
}

func logMetadata(m metadata.Map) {
	if len(m) == 0 {
		return
	}
	log.Info().Str("title", m.Title()).Str("artist", m.Artist()).Msg("Now playing")
}

func serviceName(name string) string {
	if name != "" {
		return name
	}
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	return fmt.Sprintf("%s-resonate-radio", hostname)
}
