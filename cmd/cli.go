// SPDX-License-Identifier: MIT
package cmd

import (
	"strings"

	"spectrum/internal/config"
	"spectrum/pkg/build"

	"github.com/spf13/cobra"
)

// Commands ParseArgs can select. CommandRun starts the pipeline.
const (
	CommandRun     = ""
	CommandList    = "list"
	CommandDevices = "devices"
	CommandVersion = "version"
)

// Invocation is the parsed command line. Config is only set for CommandRun.
type Invocation struct {
	Command string
	Config  *config.Config
}

// flagValues holds raw flag values; only flags the user set override the
// loaded configuration.
type flagValues struct {
	configPath      string
	source          string
	file            string
	deviceID        int
	channels        int
	sampleRate      float64
	framesPerBuffer int
	lowLatency      bool
	bins            int
	record          bool
	outputDir       string
	verbose         bool
}

// ParseArgs parses args (without the program name) and, for the run command,
// loads the configuration, applies flag overrides and validates the result.
func ParseArgs(args []string) (*Invocation, error) {
	buildInfo := build.GetBuildFlags()
	inv := &Invocation{}
	var flags flagValues

	rootCmd := &cobra.Command{
		Use:           buildInfo.Name,
		Short:         buildInfo.Description,
		Version:       buildInfo.Version,
		SilenceErrors: true,
		SilenceUsage:  true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd:   true,
			DisableDescriptions: true,
			DisableNoDescFlag:   true,
			HiddenDefaultCmd:    true,
		},
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(flags.configPath)
			if err != nil {
				return err
			}
			flags.apply(cmd, cfg)
			if err := cfg.Validate(); err != nil {
				return err
			}
			inv.Command = CommandRun
			inv.Config = cfg
			return nil
		},
	}

	// Display help message
	rootCmd.SetHelpCommand(&cobra.Command{Hidden: true})

	rootCmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List available audio devices",
			Run: func(cmd *cobra.Command, args []string) {
				inv.Command = CommandList
			},
		},
		&cobra.Command{
			Use:   "devices",
			Short: "Pick a capture device and print its audio: configuration",
			Run: func(cmd *cobra.Command, args []string) {
				inv.Command = CommandDevices
			},
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print build information",
			Run: func(cmd *cobra.Command, args []string) {
				inv.Command = CommandVersion
			},
		},
	)

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flags.configPath, "config", "",
		"Path to the YAML configuration file (default: spectrum.yaml or config.yaml if present)")

	// Audio Source Configuration
	pf.StringVar(&flags.source, "source", config.DefaultSource,
		"Capture backend: portaudio, malgo, wav or tone")
	pf.StringVar(&flags.file, "file", "",
		"WAV file to replay with the wav source")
	pf.IntVarP(&flags.deviceID, "device", "d", config.DefaultDeviceID,
		"Specify input device ID. Use 'list' command to see available devices.")
	pf.IntVarP(&flags.channels, "channels", "c", config.DefaultChannels,
		"Number of interleaved channels to capture (1=mono, 2=stereo)")
	pf.Float64VarP(&flags.sampleRate, "sample-rate", "s", config.DefaultSampleRate,
		"Sample rate, measured in Hertz (Hz)")
	pf.IntVarP(&flags.framesPerBuffer, "frames-per-buffer", "b", config.DefaultFramesPerBuffer,
		"The number of frames per driver callback (affects latency)")
	pf.BoolVarP(&flags.lowLatency, "low-latency", "l", config.DefaultLowLatency,
		"Use the device's low input latency")

	// Spectrum Configuration
	pf.IntVarP(&flags.bins, "bins", "n", config.DefaultBins,
		"Number of spectrum bins per payload")

	// Recording Configuration
	pf.BoolVarP(&flags.record, "record", "r", false,
		"Record every analysed window to a WAV file")
	pf.StringVarP(&flags.outputDir, "output", "o", config.DefaultRecordingDir,
		"Directory for recordings")

	// Debug Configuration
	pf.BoolVarP(&flags.verbose, "verbose", "v", false,
		"Show verbose output")

	rootCmd.SetArgs(args)
	if err := rootCmd.Execute(); err != nil {
		return nil, err
	}
	return inv, nil
}

// apply copies every flag the user set onto cfg.
func (f *flagValues) apply(cmd *cobra.Command, cfg *config.Config) {
	changed := cmd.Flags().Changed

	if changed("source") {
		cfg.Audio.Source = strings.ToLower(f.source)
	}
	if changed("file") {
		cfg.Audio.File = f.file
		if !changed("source") {
			cfg.Audio.Source = config.SourceWAV
		}
	}
	if changed("device") {
		cfg.Audio.InputDevice = f.deviceID
	}
	if changed("channels") {
		cfg.Audio.Channels = f.channels
	}
	if changed("sample-rate") {
		cfg.Audio.SampleRate = f.sampleRate
	}
	if changed("frames-per-buffer") {
		cfg.Audio.FramesPerBuffer = f.framesPerBuffer
	}
	if changed("low-latency") {
		cfg.Audio.LowLatency = f.lowLatency
	}
	if changed("bins") {
		cfg.Spectrum.Bins = f.bins
	}
	if changed("record") {
		cfg.Recording.Enabled = f.record
	}
	if changed("output") {
		cfg.Recording.OutputDir = f.outputDir
	}
	if f.verbose {
		cfg.Debug = true
		cfg.LogLevel = "debug"
	}
}
