package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/aposazhennikov/radio-relay/logger"
	"github.com/aposazhennikov/radio-relay/mediaelement"
	"github.com/aposazhennikov/radio-relay/playback"
)

var (
	serverURL  string
	outputFile string
	volume     float64
	podcastKey string
	realtime   bool
)

var rootCmd = &cobra.Command{
	Use:   "radio-player",
	Short: "Headless player for the station's live stream",
	Long: `radio-player plays the station through the relay the way the web player does:
default stream first, the fallback once, then backoff until it gives up. Decoded
audio is written as 16-bit little-endian stereo PCM.

Signals:
  SIGHUP   refresh the stream (resets the retry budget)
  SIGUSR1  play the --podcast episode (pauses the radio)
  SIGUSR2  play the radio (pauses the podcast)

Examples:
  radio-player --server http://localhost:8000 --out - | aplay -f cd
  radio-player --server http://localhost:8000 --out radio.pcm --volume 0.5`,
	RunE: runPlayer,
}

func init() {
	rootCmd.Flags().StringVar(&serverURL, "server", "http://localhost:8000", "Relay server base URL")
	rootCmd.Flags().StringVarP(&outputFile, "out", "o", "", `PCM output file, "-" for stdout (default: discard)`)
	rootCmd.Flags().Float64Var(&volume, "volume", 1, "Linear output gain, 0 mutes")
	rootCmd.Flags().StringVar(&podcastKey, "podcast", "", "Podcast audio key or path to play on SIGUSR1")
	rootCmd.Flags().BoolVar(&realtime, "realtime", true, "Pace output at the stream's sample rate")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runPlayer(cmd *cobra.Command, _ []string) error {
	logCfg := logger.ConfigFromEnv()
	logCfg.Output = os.Stderr
	log := logger.NewLogger(logCfg)

	sink, closeSink, err := openSink(outputFile)
	if err != nil {
		return err
	}
	defer closeSink()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	session := playback.Session()
	session.SetVolume(volume)

	resolver := playback.NewResolver(serverURL, nil)
	resolveCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	settings, err := resolver.Resolve(resolveCtx)
	cancel()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Stream config unavailable (%v), using %s\n", err, settings.DefaultURL)
	}
	if settings.OnAir {
		fmt.Fprintln(os.Stderr, "On air")
	} else {
		fmt.Fprintln(os.Stderr, "Off air")
	}

	bus := playback.NewBus()
	base := mediaelement.Options{Sink: sink, Session: session, Realtime: realtime, Logger: log}

	var radio *playback.RetryController
	radioOpts := base
	radioOpts.Listener = func(ev playback.Event) { radio.HandleEvent(ev) }
	radioEl := mediaelement.New(radioOpts)
	defer radioEl.Close()

	radio = playback.NewRetryController(radioEl, playback.RetryOptions{
		Server:   serverURL,
		Bus:      bus,
		Logger:   log,
		OnStatus: printStatus(),
	})
	defer radio.Close()
	radio.SetSettings(settings)

	var podcast *playback.PodcastPlayer
	podcastOpts := base
	podcastOpts.Listener = func(ev playback.Event) { podcast.HandleEvent(ev) }
	podcastEl := mediaelement.New(podcastOpts)
	defer podcastEl.Close()

	podcast = playback.NewPodcastPlayer(podcastEl, serverURL, bus, nil, log)
	if podcastKey != "" {
		podcast.Open(podcastKey)
	}

	coord := playback.NewCoordinator(bus, radio, podcast, log)
	defer coord.Close()

	control := make(chan os.Signal, 1)
	signal.Notify(control, syscall.SIGHUP, syscall.SIGUSR1, syscall.SIGUSR2)
	defer signal.Stop(control)

	radio.Play()
	for {
		select {
		case <-ctx.Done():
			fmt.Fprintln(os.Stderr, "Stopping")
			radio.Pause()
			podcast.Pause()
			return nil
		case sig := <-control:
			switch sig {
			case syscall.SIGHUP:
				if err := refreshSettings(ctx, resolver, radio); err != nil {
					fmt.Fprintf(os.Stderr, "Stream config unavailable (%v), keeping current settings\n", err)
				}
				radio.Refresh()
			case syscall.SIGUSR1:
				if podcastKey == "" {
					fmt.Fprintln(os.Stderr, "No --podcast given")
					continue
				}
				podcast.Play()
			case syscall.SIGUSR2:
				radio.Play()
			}
		}
	}
}

// refreshSettings reloads the stream config, keeping the current settings when the fetch fails.
func refreshSettings(ctx context.Context, resolver *playback.Resolver, radio *playback.RetryController) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	settings, err := resolver.Resolve(ctx)
	if err != nil {
		return err
	}
	radio.SetSettings(settings)
	return nil
}

// printStatus returns an OnStatus callback that prints state and message changes to stderr.
func printStatus() func(playback.Status) {
	var (
		mu   sync.Mutex
		last playback.Status
	)
	return func(s playback.Status) {
		mu.Lock()
		defer mu.Unlock()
		if s.State == last.State && s.Message == last.Message {
			return
		}
		last = s
		if s.Message != "" {
			fmt.Fprintf(os.Stderr, "[%s] %s\n", s.State, s.Message)
			return
		}
		fmt.Fprintf(os.Stderr, "[%s] %s\n", s.State, s.URL)
	}
}

func openSink(path string) (io.Writer, func(), error) {
	switch path {
	case "":
		return io.Discard, func() {}, nil
	case "-":
		return os.Stdout, func() {}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("create output file: %w", err)
	}
	return f, func() { _ = f.Close() }, nil
}
