// SPDX-License-Identifier: MIT
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"spectrum/cmd"
	"spectrum/internal/analysis"
	"spectrum/internal/audio"
	"spectrum/internal/capture"
	"spectrum/internal/config"
	"spectrum/internal/fft"
	applog "spectrum/internal/log"
	"spectrum/internal/metrics"
	"spectrum/internal/payload"
	"spectrum/internal/recording"
	"spectrum/internal/scheduler"
	"spectrum/internal/transport"
	"spectrum/internal/transport/mqtt"
	"spectrum/internal/transport/udp"
	"spectrum/internal/tui"
	"spectrum/pkg/build"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 2 * time.Second

// main is the entry point for the spectrum analyser.
// The program flow is divided into three distinct phases:
//
// 1. Startup Phase (Cold Path):
//   - Initialize build information
//   - Parse command line arguments and load configuration
//   - Execute one-off commands if requested
//   - Build the pipeline: window, transform, binner, publishers, source
//
// 2. Concurrent Phase (Hot Path):
//   - Audio callback fills the capture window
//   - Scheduler transforms, bins and encodes once per window
//   - Dispatcher publishes to every configured sink
//
// 3. Shutdown Phase (Cold Path):
//   - Handle termination signals or a fatal device error
//   - Stop the source, flush the recording, close publishers
func main() {
	// ==================== STARTUP PHASE (Cold Path) ====================

	// Development builds run without ldflags and keep the default build info.
	if err := build.Initialize(); err != nil {
		applog.Debugf("build info incomplete: %v", err)
	}

	inv, err := cmd.ParseArgs(os.Args[1:])
	if err != nil {
		applog.Fatalf("%v", err)
	}

	// Handle one-off commands that don't require the pipeline to be running
	if inv.Command != cmd.CommandRun {
		if err := executeCommand(inv.Command); err != nil {
			applog.Fatalf("%v", err)
		}
		return
	}

	if err := run(inv.Config); err != nil {
		applog.Fatalf("%v", err)
	}
}

// executeCommand handles one-off commands such as listing devices.
func executeCommand(command string) error {
	switch command {
	case cmd.CommandVersion:
		fmt.Println(build.GetBuildFlags())
		return nil
	case cmd.CommandList, cmd.CommandDevices:
	default:
		return fmt.Errorf("unknown command %q", command)
	}

	if err := audio.Initialize(); err != nil {
		return err
	}
	defer audio.Terminate()

	if command == cmd.CommandList {
		return audio.ListDevices(os.Stdout)
	}

	sel, ok, err := tui.StartDeviceListUI()
	if err != nil || !ok {
		return err
	}
	snippet, err := sel.YAML()
	if err != nil {
		return err
	}
	fmt.Print(snippet)
	return nil
}

func run(cfg *config.Config) error {
	level, _ := applog.ParseLevel(cfg.LogLevel)
	if cfg.Debug {
		level = applog.LevelDebug
	}
	applog.SetLevel(level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Audio.Source == config.SourcePortAudio {
		if err := audio.Initialize(); err != nil {
			return err
		}
		defer audio.Terminate()
	}

	// Metrics are optional; a nil *Metrics ignores every observation.
	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		var err error
		if m, err = metrics.New(prometheus.NewRegistry()); err != nil {
			return err
		}
	}

	buffer, err := capture.NewBuffer(cfg.Audio.Channels, cfg.Audio.FramesPerWindow)
	if err != nil {
		return err
	}
	window, err := fft.ParseWindowFunc(cfg.Spectrum.FFTWindow)
	if err != nil {
		return err
	}
	transform, err := fft.NewTransform(buffer.Len(), window)
	if err != nil {
		return err
	}
	binner, err := analysis.NewBinner(analysis.BinnerOptions{
		Bins:             cfg.Spectrum.Bins,
		Smoothing:        cfg.Spectrum.Smoothing,
		NoiseOffset:      cfg.Spectrum.NoiseOffset,
		IncludeImaginary: cfg.Spectrum.IncludeImaginary,
	})
	if err != nil {
		return err
	}
	encoder := payload.Encoder{Precision: cfg.Encoding.Precision, Separator: cfg.Encoding.Separator[0]}

	sinks, err := openPublishers(ctx, cfg, m)
	if err != nil {
		return err
	}
	dispatcher, err := transport.NewDispatcher(sinks, transport.DispatcherOptions{Observer: m})
	if err != nil {
		sinks.Close()
		return err
	}
	dispatcher.Start()
	defer func() {
		if err := dispatcher.Close(); err != nil {
			applog.Warnf("closing publishers: %v", err)
		}
	}()

	var recorder *recording.Recorder
	if cfg.Recording.Enabled {
		if recorder, err = recording.New(recording.Options{
			Dir:        cfg.Recording.OutputDir,
			SampleRate: int(cfg.Audio.SampleRate),
			Channels:   cfg.Audio.Channels,
			BitDepth:   cfg.Recording.BitDepth,
		}); err != nil {
			return err
		}
		path, err := recorder.Start()
		if err != nil {
			return err
		}
		defer func() {
			if err := recorder.Stop(); err != nil {
				applog.Errorf("Error stopping recording: %v", err)
			}
			fmt.Printf("\nRecording saved to: %s\n", path)
		}()
	}

	source, err := audio.NewSource(cfg.Audio.Source, audio.Options{
		SampleRate:      cfg.Audio.SampleRate,
		Channels:        cfg.Audio.Channels,
		FramesPerBuffer: cfg.Audio.FramesPerBuffer,
		DeviceID:        cfg.Audio.InputDevice,
		LowLatency:      cfg.Audio.LowLatency,
		File:            cfg.Audio.File,
		Loop:            cfg.Audio.Loop,
		ToneHz:          cfg.Audio.ToneHz,
	})
	if err != nil {
		return err
	}

	opts := scheduler.Options{
		Buffer:         buffer,
		Transform:      transform,
		Processor:      binner,
		Encoder:        encoder,
		Sink:           dispatcher,
		WindowDuration: cfg.WindowDuration(),
		DeviceErrors:   source.Errors(),
		Metrics:        m,
	}
	// A nil *Recorder in the interface would not compare equal to nil.
	if recorder != nil {
		opts.Recorder = recorder
	}
	sched, err := scheduler.New(opts)
	if err != nil {
		return err
	}

	// ==================== CONCURRENT PHASE (Hot Path) ====================

	// CRITICAL: Start of real-time audio processing. The first callback into
	// the capture buffer marks the start of the hot path.
	if err := source.Start(buffer); err != nil {
		return err
	}
	defer func() {
		if err := source.Stop(); err != nil {
			applog.Errorf("Error stopping audio source: %v", err)
		}
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return sched.Run(gctx)
	})

	if m != nil {
		server := metrics.NewServer(cfg.Metrics.Address, m.Registry())
		if err := server.Start(); err != nil {
			stop()
			_ = g.Wait()
			return err
		}
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		})
	}

	applog.Infof("%s %s: %s source, %d bins every %s",
		build.GetBuildFlags().Name, build.GetBuildFlags().Version,
		cfg.Audio.Source, cfg.Spectrum.Bins, cfg.WindowDuration())

	// ==================== SHUTDOWN PHASE (Cold Path) ====================

	err = g.Wait()
	stats := dispatcher.Stats()
	applog.Infof("shutting down after %d cycles: %d published, %d failed, %d dropped",
		sched.Cycles(), stats.Published, stats.Failed, stats.Dropped)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// openPublishers connects every enabled sink. A broker that is down at
// startup is not fatal: the client keeps retrying and payloads are dropped
// until it connects.
func openPublishers(ctx context.Context, cfg *config.Config, m *metrics.Metrics) (transport.Fanout, error) {
	var sinks transport.Fanout

	if cfg.MQTT.Enabled {
		pub, err := mqtt.NewPublisher(mqtt.Config{
			Broker:         cfg.MQTT.Broker,
			Topic:          cfg.MQTT.Topic,
			ClientID:       cfg.MQTT.ClientID,
			Username:       cfg.MQTT.Username,
			Password:       cfg.MQTT.Password,
			QoS:            cfg.MQTT.QoS,
			Retain:         cfg.MQTT.Retain,
			ConnectTimeout: cfg.MQTT.ConnectTimeout,
		}, m)
		if err != nil {
			return nil, err
		}
		if err := pub.Connect(ctx); err != nil {
			applog.Warnf("%v", err)
		}
		sinks = append(sinks, pub)
	}

	if cfg.WebSocket.Enabled {
		ws := transport.NewWebSocketPublisher(cfg.WebSocket.Address, cfg.WebSocket.Path)
		if err := ws.Start(); err != nil {
			sinks.Close()
			return nil, err
		}
		sinks = append(sinks, ws)
	}

	if cfg.UDP.Enabled {
		pub, err := udp.NewPublisher(cfg.UDP.TargetAddress)
		if err != nil {
			sinks.Close()
			return nil, err
		}
		sinks = append(sinks, pub)
	}

	if cfg.Debug || len(sinks) == 0 {
		sinks = append(sinks, transport.NewLoggingPublisher("payload"))
	}
	return sinks, nil
}
