package cmd

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"yukkuri/internal/batch"
	"yukkuri/internal/config"
	"yukkuri/internal/dsp"
	"yukkuri/internal/log"
	"yukkuri/internal/playback"
	"yukkuri/internal/processor"
	"yukkuri/internal/subtitle"
	"yukkuri/internal/tui"
	"yukkuri/pkg/bitint"
)

func (a *app) processCommand() *cobra.Command {
	var adj adjustments
	cmd := &cobra.Command{
		Use:   "process <clip>...",
		Short: "Adjust speed, volume and pitch of clips in place",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			adj.resolve(cmd, a.cfg)
			h := a.hub()
			defer h.Close()

			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			p := a.processor()
			var failed int
			for _, path := range args {
				if ctx.Err() != nil {
					break
				}
				res := p.ProcessRequest(ctx, processor.Request{
					Path: path, Speed: adj.speed, Volume: adj.volume, Pitch: adj.pitch,
				}, sink(h))
				h.Result(res.Path, res.Tier, res.Err)
				if res.Err != nil {
					failed++
				}
				fmt.Fprintln(a.out, res.Path)
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d clip(s) kept unprocessed", failed, len(args))
			}
			return nil
		},
	}
	adj.register(cmd)
	return cmd
}

func (a *app) batchCommand() *cobra.Command {
	var (
		adj         adjustments
		script      string
		clips       string
		translation string
		outputDir   string
		name        string
		noLRC       bool
	)
	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Process a directory of clips line by line and write LRC subtitles",
		Long: "Pairs each line of --script with the clips in --clips (sorted by name), " +
			"processes every clip and writes <name>.lrc timed by the processed durations. " +
			"With --translation, writes <name>_chinese.lrc and <name>_japanese.lrc instead.",
		RunE: func(cmd *cobra.Command, args []string) error {
			adj.resolve(cmd, a.cfg)
			lines, err := batch.ReadLines(script)
			if err != nil {
				return err
			}
			var translated []string
			if translation != "" {
				if translated, err = batch.ReadLines(translation); err != nil {
					return err
				}
			}
			synth, err := batch.FromDir(clips, a.cfg.Batch.Extensions)
			if err != nil {
				return err
			}
			if outputDir == "" {
				outputDir = clips
			}
			if name == "" {
				name = strings.TrimSuffix(filepath.Base(script), filepath.Ext(script))
			}

			h := a.hub()
			defer h.Close()
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			p := a.processor()
			r := &batch.Runner{
				Synth:     synth,
				Processor: p,
				Prober:    p.Controller().Prober(),
				Log:       sink(h),
				Progress:  h.Progress(),
			}
			sum := r.Run(ctx, batch.Job{
				Lines:       lines,
				Translation: translated,
				Speed:       adj.speed,
				Volume:      adj.volume,
				Pitch:       adj.pitch,
				Subtitles:   a.cfg.Subtitle.Enabled && !noLRC,
				OutputDir:   outputDir,
				Name:        subtitle.SanitizeFilename(name),
				Tags: subtitle.Tags{
					Artist: a.cfg.Subtitle.Artist,
					Title:  a.cfg.Subtitle.Title,
					Album:  a.cfg.Subtitle.Album,
				},
			})

			fmt.Fprintf(a.out, "job %s: %d clip(s), %d processed, %d unchanged, %d failed, %d skipped in %s\n",
				sum.JobID, len(sum.Clips), sum.Processed, sum.Unchanged, sum.Failed, sum.Skipped, sum.Elapsed.Round(time.Millisecond))
			for _, s := range sum.Subtitles {
				fmt.Fprintln(a.out, s)
			}
			if sum.Cancelled {
				return context.Canceled
			}
			return nil
		},
	}
	adj.register(cmd)
	cmd.Flags().StringVar(&script, "script", "", "Text file with one line of dialogue per clip")
	cmd.Flags().StringVar(&clips, "clips", "", "Directory holding one synthesized clip per line")
	cmd.Flags().StringVar(&translation, "translation", "", "Second-language script for bilingual subtitles")
	cmd.Flags().StringVarP(&outputDir, "output", "o", "", "Directory for subtitle files (default: --clips)")
	cmd.Flags().StringVar(&name, "name", "", "Subtitle file name prefix (default: script name)")
	cmd.Flags().BoolVar(&noLRC, "no-lrc", false, "Do not write subtitle files")
	cmd.MarkFlagRequired("script")
	cmd.MarkFlagRequired("clips")
	return cmd
}

func (a *app) watchCommand() *cobra.Command {
	var adj adjustments
	cmd := &cobra.Command{
		Use:   "watch <dir>",
		Short: "Process clips as they are dropped into a directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			adj.resolve(cmd, a.cfg)
			h := a.hub()
			defer h.Close()

			w, err := batch.NewWatcher(args[0], a.processor())
			if err != nil {
				return err
			}
			w.Extensions = a.cfg.Batch.Extensions
			w.Settle = a.cfg.Batch.Settle
			w.Speed, w.Volume, w.Pitch = adj.speed, adj.volume, adj.pitch
			w.Log = sink(h)
			w.OnResult = func(res processor.Result) {
				h.Result(res.Path, res.Tier, res.Err)
				fmt.Fprintln(a.out, res.Path)
			}

			ctx, cancel := signalContext(cmd.Context())
			defer cancel()
			return w.Run(ctx)
		},
	}
	adj.register(cmd)
	return cmd
}

func (a *app) probeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "probe <clip>...",
		Short: "Print codec, sample rate, channels and duration",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prober := a.processor().Controller().Prober()
			for _, path := range args {
				info, err := prober.Probe(cmd.Context(), path)
				if err != nil {
					return err
				}
				fmt.Fprintf(a.out, "%s\t%s\t%d Hz\t%d ch\t%.3fs\n",
					path, info.Codec, info.SampleRate, info.Channels, info.Duration.Seconds())
			}
			return nil
		},
	}
}

func (a *app) analyzeCommand() *cobra.Command {
	var (
		fftSize int
		window  string
		minHz   float64
	)
	cmd := &cobra.Command{
		Use:   "analyze <clip>",
		Short: "Print the dominant frequency and band energies of a clip",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if n := bitint.NextPowerOfTwo(fftSize); n != fftSize {
				log.Debugf("Rounding FFT size %d up to %d", fftSize, n)
				fftSize = n
			}
			w, err := dsp.ParseWindowFunc(window)
			if err != nil {
				return err
			}
			an, err := dsp.NewAnalyzer(fftSize, w)
			if err != nil {
				return err
			}
			buf, err := a.processor().Controller().Decode(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			for ch, samples := range buf.Channels {
				spec := an.Analyze(samples, buf.SampleRate)
				fmt.Fprintf(a.out, "channel %d: dominant %.1f Hz, peak %.3f, rms %.3f\n",
					ch, spec.DominantFrequency(minHz), dsp.Peak(samples), dsp.RMS(samples))
				energies := spec.BandEnergies(dsp.DefaultBands)
				for _, band := range dsp.DefaultBands {
					fmt.Fprintf(a.out, "  %-8s %.4f\n", band.Name, energies[band.Name])
				}
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&fftSize, "fft-size", 4096, "FFT size, rounded up to a power of 2")
	cmd.Flags().StringVar(&window, "window", "hann", "Window function (hann, hamming, blackman, nuttall, lanczos)")
	cmd.Flags().Float64Var(&minHz, "min-hz", 60, "Ignore peaks below this frequency")
	return cmd
}

func (a *app) previewCommand() *cobra.Command {
	var (
		adj    adjustments
		device int
	)
	cmd := &cobra.Command{
		Use:   "preview <clip>",
		Short: "Play a clip, optionally with adjustments applied in memory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			adj.resolve(cmd, a.cfg)
			if !cmd.Flags().Changed("device") {
				device = a.cfg.Playback.OutputDevice
			}
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			c := a.processor().Controller()
			buf, err := c.Decode(ctx, args[0])
			if err != nil {
				return err
			}
			req := processor.Request{Speed: adj.speed, Volume: adj.volume, Pitch: adj.pitch}
			if !req.IsIdentity() {
				if buf, err = c.Preview(ctx, buf, req.Adjustments(), log.Sink(log.LevelInfo)); err != nil {
					return err
				}
			}

			p := &playback.Player{DeviceID: device, FramesPerBuffer: a.cfg.Playback.FramesPerBuffer}
			log.Infof("Playing %s (%.2fs)", filepath.Base(args[0]), buf.Duration().Seconds())
			if err := p.Play(ctx, buf); err != nil && ctx.Err() == nil {
				return err
			}
			return nil
		},
	}
	adj.register(cmd)
	cmd.Flags().IntVarP(&device, "device", "d", config.DefaultOutputDevice,
		"Output device ID, -1 for the system default. Use 'devices --list' to see them.")
	return cmd
}

func (a *app) devicesCommand() *cobra.Command {
	var list bool
	cmd := &cobra.Command{
		Use:   "devices",
		Short: "Pick the preview output device",
		Long:  "Opens a device picker and prints the playback section to paste into the config file.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if list {
				devices, err := playback.Devices()
				if err != nil {
					return err
				}
				playback.PrintDevices(a.out, devices)
				return nil
			}

			sel, err := tui.PickDevice(playback.Devices, a.cfg.Playback.FramesPerBuffer)
			if err != nil || sel == nil {
				return err
			}
			section := map[string]config.PlaybackConfig{
				"playback": {OutputDevice: sel.DeviceID, FramesPerBuffer: sel.FramesPerBuffer},
			}
			data, err := yaml.Marshal(section)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "# %s\n%s", sel.DeviceName, data)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&list, "list", "l", false, "Print the devices instead of opening the picker")
	return cmd
}
