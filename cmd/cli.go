package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"yukkuri/internal/config"
	"yukkuri/internal/log"
	"yukkuri/internal/processor"
	"yukkuri/internal/transport"
	"yukkuri/internal/transport/udp"
	"yukkuri/pkg/build"
)

// udpHeartbeat is how often the last progress event is repeated over UDP.
const udpHeartbeat = time.Second

// app carries the state shared by every command.
type app struct {
	out        io.Writer
	configPath string
	verbose    bool
	logLevel   string
	cfg        *config.Config
}

// adjustments are the --speed, --volume and --pitch flags.
type adjustments struct {
	speed, volume, pitch int
}

func (a *adjustments) register(cmd *cobra.Command) {
	cmd.Flags().IntVar(&a.speed, "speed", config.DefaultPercent, "Playback speed in percent (150 plays 1.5x faster)")
	cmd.Flags().IntVar(&a.volume, "volume", config.DefaultPercent, "Volume in percent (0 is silence)")
	cmd.Flags().IntVar(&a.pitch, "pitch", config.DefaultPercent, "Pitch in percent (must be positive)")
}

// resolve fills unset flags from the processing section of the config.
func (a *adjustments) resolve(cmd *cobra.Command, cfg *config.Config) {
	if !cmd.Flags().Changed("speed") {
		a.speed = cfg.Processing.Speed
	}
	if !cmd.Flags().Changed("volume") {
		a.volume = cfg.Processing.Volume
	}
	if !cmd.Flags().Changed("pitch") {
		a.pitch = cfg.Processing.Pitch
	}
}

// Execute runs the command line.
func Execute() error {
	root := NewRootCommand(os.Stdout)
	root.SetArgs(os.Args[1:])
	return root.Execute()
}

// NewRootCommand builds the command tree writing results to out.
func NewRootCommand(out io.Writer) *cobra.Command {
	buildInfo := build.GetBuildFlags()
	a := &app{out: out}

	rootCmd := &cobra.Command{
		Use:           buildInfo.Name,
		Short:         buildInfo.Description,
		Version:       buildInfo.String(),
		SilenceErrors: true,
		SilenceUsage:  true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd:   true,
			DisableDescriptions: true,
			DisableNoDescFlag:   true,
			HiddenDefaultCmd:    true,
		},
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load()
		},
	}
	rootCmd.SetOut(out)
	rootCmd.SetHelpCommand(&cobra.Command{Hidden: true})

	rootCmd.PersistentFlags().StringVarP(&a.configPath, "config", "c", "",
		"Path to a YAML config file (default: ./config.yaml or ./yukkuri.yaml if present)")
	rootCmd.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false,
		"Show verbose output (same as --log-level debug)")
	rootCmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "",
		"Override the configured log level (debug, info, warn, error)")

	rootCmd.AddCommand(
		a.processCommand(),
		a.batchCommand(),
		a.watchCommand(),
		a.probeCommand(),
		a.analyzeCommand(),
		a.previewCommand(),
		a.devicesCommand(),
	)
	return rootCmd
}

func (a *app) load() error {
	cfg, err := config.LoadConfig(a.configPath)
	if err != nil {
		return err
	}
	a.cfg = cfg

	level := cfg.LogLevel
	if a.logLevel != "" {
		level = a.logLevel
	}
	if a.verbose || cfg.Debug {
		level = "debug"
	}
	parsed, ok := log.ParseLevel(level)
	if !ok {
		return fmt.Errorf("invalid log level %q", level)
	}
	log.SetLevel(parsed)
	log.Debugf("Config: %+v", *cfg)
	return nil
}

func (a *app) processor() *processor.Processor {
	return processor.FromConfig(a.cfg)
}

// hub opens the transports enabled in the config. A transport that fails
// to start is logged and skipped.
func (a *app) hub() *transport.Hub {
	h := transport.NewHub()
	if a.cfg.Debug {
		h.Add(transport.NewLoggingTransport())
	}
	tc := a.cfg.Transport
	if tc.WebSocketEnabled {
		ws, err := transport.NewWebSocketTransport(tc.WebSocketAddress, tc.WebSocketPath)
		if err != nil {
			log.Warnf("WebSocket transport disabled: %v", err)
		} else {
			h.Add(ws)
		}
	}
	if tc.UDPEnabled {
		if pub, err := newUDPPublisher(tc.UDPTargetAddress); err != nil {
			log.Warnf("UDP transport disabled: %v", err)
		} else {
			h.Add(pub)
		}
	}
	return h
}

func newUDPPublisher(addr string) (*udp.UDPPublisher, error) {
	sender, err := udp.NewUDPSender(addr)
	if err != nil {
		return nil, err
	}
	pub, err := udp.NewUDPPublisher(udpHeartbeat, sender)
	if err != nil {
		sender.Close()
		return nil, err
	}
	pub.Start()
	return pub, nil
}

// sink sends user-facing messages to the info log and every transport.
func sink(h *transport.Hub) log.LogFunc {
	return log.Tee(log.Sink(log.LevelInfo), h.Log())
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
