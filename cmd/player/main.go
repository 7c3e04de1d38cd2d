// Package main provides the player entry point.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/joho/godotenv"
	zlog "github.com/rs/zerolog/log"

	"github.com/mixgrove/player/internal/app/session"
	"github.com/mixgrove/player/internal/app/tracking"
	"github.com/mixgrove/player/internal/domain/playlist"
	"github.com/mixgrove/player/internal/domain/track"
	"github.com/mixgrove/player/internal/infra/audio"
	"github.com/mixgrove/player/internal/infra/catalog"
	"github.com/mixgrove/player/internal/infra/config"
	"github.com/mixgrove/player/internal/infra/logger"
	"github.com/mixgrove/player/internal/infra/playcount"
	"github.com/mixgrove/player/internal/infra/store"
)

var (
	app        = kingpin.New("mixgrove-player", "mixgrove playback client")
	configPath = app.Flag("config", "Path to config file").String()
	verbose    = app.Flag("verbose", "Enable verbose (DEBUG) logging").Short('v').Bool()
	logfile    = app.Flag("logfile", "Path to log file (default: stdout)").String()
)

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	kingpin.MustParse(app.Parse(os.Args[1:]))

	loggerConfig := logger.Config{
		Output: "stdout",
		Level:  "info",
	}
	if *verbose {
		loggerConfig.Level = "debug"
	}
	if *logfile != "" {
		loggerConfig.Output = *logfile
	}
	if err := logger.Init(loggerConfig); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}

	var cfg *config.Config
	var err error
	if *configPath != "" {
		zlog.Info().Msgf("Loading config from %s", *configPath)
		cfg, err = config.Load(*configPath)
	} else {
		cfg, err = config.Default()
	}
	if err != nil {
		zlog.Fatal().Msgf("Failed to load config: %v", err)
	}

	if err := run(cfg); err != nil {
		zlog.Error().Msgf("Player error: %v", err)
		os.Exit(1)
	}
}

// run wires the player together. Using a separate function ensures defer
// statements execute even when returning with an error.
func run(cfg *config.Config) error {
	ctx := context.Background()

	// Catalog (optional; without credentials only direct URLs play and a
	// saved session cannot be restored).
	var catalogClient *catalog.Client
	if cfg.Catalog.Spotify.Enabled() {
		var err error
		catalogClient, err = catalog.New(ctx, catalog.Config{
			ClientID:     cfg.Catalog.Spotify.ClientID,
			ClientSecret: cfg.Catalog.Spotify.ClientSecret,
			RefreshToken: cfg.Catalog.Spotify.RefreshToken,
			Market:       cfg.Catalog.Spotify.Market,
		})
		if err != nil {
			return fmt.Errorf("failed to create catalog client: %w", err)
		}
	} else {
		zlog.Warn().Msg("no catalog credentials configured, running in direct-URL mode")
	}

	// Local storage
	sessions, err := store.NewFileStore(cfg.Storage.StateDir)
	if err != nil {
		return fmt.Errorf("failed to open state store: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Storage.SettingsDB), 0o755); err != nil {
		return fmt.Errorf("failed to create settings directory: %w", err)
	}
	settings, err := store.OpenSettings(cfg.Storage.SettingsDB)
	if err != nil {
		return fmt.Errorf("failed to open settings database: %w", err)
	}
	defer settings.Close()

	// Audio transport
	transport, err := audio.NewTransportFromConfig(cfg.Audio)
	if err != nil {
		return fmt.Errorf("failed to create audio backend: %w", err)
	}

	// Play tracking
	var tracker tracking.Reporter = tracking.LogReporter{}
	if cfg.Tracking.Enabled() {
		tracker, err = playcount.New(playcount.Config{
			BaseURL:   cfg.Tracking.APIURL,
			APIToken:  cfg.Tracking.APIToken,
			MinListen: time.Duration(cfg.Tracking.MinListenSec) * time.Second,
		})
		if err != nil {
			return fmt.Errorf("failed to create play-count client: %w", err)
		}
	}

	ctrl := session.NewController(session.Config{
		NavDebounce:       time.Duration(cfg.Player.NavDebounceMs) * time.Millisecond,
		HeartbeatInterval: time.Duration(cfg.Player.HeartbeatSec) * time.Second,
		SnapshotTTL:       time.Duration(cfg.Player.SnapshotTTLMin) * time.Minute,
		PersistThrottle:   time.Duration(cfg.Player.PersistThrottleMs) * time.Millisecond,
		DefaultVolume:     cfg.Player.DefaultVolume,
		UserID:            cfg.Tracking.UserID,
	}, session.Deps{
		Transport: transport,
		Resolver:  resolverFor(catalogClient),
		Fetcher:   fetcherFor(catalogClient),
		Tracker:   tracker,
		Sessions:  sessions,
		Settings:  settings,
	})
	defer ctrl.Close()

	// Bring the previous session back, paused, before accepting commands.
	ctrl.Restore(ctx)

	// Shutdown on SIGINT/SIGTERM; Close flushes the session snapshot.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	doneCh := make(chan struct{})
	go func() {
		commandLoop(ctx, ctrl, catalogClient)
		close(doneCh)
	}()

	select {
	case sig := <-sigCh:
		zlog.Info().Msgf("received signal %s, shutting down", sig)
	case <-doneCh:
	}
	return nil
}

// resolverFor returns the audio resolver: the catalog when available,
// otherwise a passthrough that accepts direct URLs only.
func resolverFor(c *catalog.Client) session.AudioResolver {
	if c != nil {
		return c
	}
	return passthroughResolver{}
}

// fetcherFor returns the playlist fetcher. Without a catalog no playlist
// can be fetched, so saved sessions restore to empty.
func fetcherFor(c *catalog.Client) session.PlaylistFetcher {
	if c != nil {
		return c
	}
	return noFetcher{}
}

type passthroughResolver struct{}

func (passthroughResolver) ResolveAudioURL(_ context.Context, locator string) (string, error) {
	if strings.HasPrefix(locator, "http://") || strings.HasPrefix(locator, "https://") {
		return locator, nil
	}
	return "", fmt.Errorf("cannot resolve locator %q without a catalog", locator)
}

type noFetcher struct{}

func (noFetcher) GetPlaylistWithTracks(context.Context, string) (*playlist.Playlist, error) {
	return nil, nil
}

// commandLoop reads interactive commands from stdin until EOF or "quit".
func commandLoop(ctx context.Context, ctrl *session.Controller, catalogClient *catalog.Client) {
	fmt.Println("mixgrove player ready. Type 'help' for commands.")

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return
		}
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		cmd, args := fields[0], fields[1:]

		switch cmd {
		case "help":
			printHelp()

		case "play":
			if len(args) < 1 {
				fmt.Println("usage: play <playlist-id-or-url> [start-index]")
				continue
			}
			if catalogClient == nil {
				fmt.Println("Error: playlist playback requires catalog credentials")
				continue
			}
			startIndex := 0
			if len(args) > 1 {
				if n, err := strconv.Atoi(args[1]); err == nil {
					startIndex = n
				}
			}
			pl, err := catalogClient.GetPlaylistWithTracks(ctx, args[0])
			if err != nil {
				fmt.Printf("Error: %v\n", err)
				continue
			}
			if pl == nil {
				fmt.Println("Error: playlist not found")
				continue
			}
			if err := ctrl.PlayPlaylist(ctx, pl, startIndex); err != nil {
				fmt.Printf("Error: %v\n", err)
			}

		case "track":
			if len(args) < 1 {
				fmt.Println("usage: track <track-id-or-url>")
				continue
			}
			t, err := lookupTrack(ctx, catalogClient, args[0])
			if err != nil {
				fmt.Printf("Error: %v\n", err)
				continue
			}
			if err := ctrl.PlayTrack(ctx, t); err != nil {
				fmt.Printf("Error: %v\n", err)
			}

		case "next":
			if err := ctrl.Next(ctx); err != nil {
				fmt.Printf("Error: %v\n", err)
			}

		case "prev":
			if err := ctrl.Previous(ctx); err != nil {
				fmt.Printf("Error: %v\n", err)
			}

		case "pause":
			if err := ctrl.Pause(); err != nil {
				fmt.Printf("Error: %v\n", err)
			}

		case "resume":
			if err := ctrl.Resume(); err != nil {
				fmt.Printf("Error: %v\n", err)
			}

		case "seek":
			if len(args) < 1 {
				fmt.Println("usage: seek <seconds>")
				continue
			}
			sec, err := strconv.ParseFloat(args[0], 64)
			if err != nil {
				fmt.Println("usage: seek <seconds>")
				continue
			}
			ctrl.Seek(sec)

		case "shuffle":
			ctrl.ToggleShuffle()
			fmt.Printf("Shuffle: %t\n", ctrl.ShuffleEnabled())

		case "repeat":
			fmt.Printf("Repeat: %s\n", ctrl.CycleRepeat())

		case "vol":
			if len(args) < 1 {
				fmt.Printf("Volume: %d\n", ctrl.Volume())
				continue
			}
			v, err := strconv.Atoi(args[0])
			if err != nil {
				fmt.Println("usage: vol [0-100]")
				continue
			}
			ctrl.SetVolume(v)

		case "status":
			printStatus(ctrl.Status())

		case "stop":
			if err := ctrl.Stop(); err != nil {
				fmt.Printf("Error: %v\n", err)
			}

		case "quit", "exit":
			return

		default:
			fmt.Printf("Unknown command: %s (try 'help')\n", cmd)
		}
	}
}

// lookupTrack resolves a track reference: catalog ID/URL, or a direct
// audio URL in direct-URL mode.
func lookupTrack(ctx context.Context, c *catalog.Client, ref string) (track.Track, error) {
	if c != nil {
		t, err := c.GetTrack(ctx, ref)
		if err != nil {
			return track.Track{}, err
		}
		if t != nil {
			return *t, nil
		}
	}
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		return track.Track{
			ID:           ref,
			Title:        filepath.Base(ref),
			AudioLocator: ref,
		}, nil
	}
	return track.Track{}, fmt.Errorf("track not found: %s", ref)
}

func printHelp() {
	fmt.Println(`Commands:
  play <playlist> [index]  Play a playlist, optionally from an index
  track <track>            Play a single track
  next / prev              Navigate the queue
  pause / resume           Pause or resume playback
  seek <seconds>           Jump inside the current track
  shuffle                  Toggle shuffle mode
  repeat                   Cycle repeat mode (off/playlist/track)
  vol [0-100]              Show or set volume
  status                   Show the session status
  stop                     Clear the session
  quit                     Exit`)
}

func printStatus(s session.Status) {
	fmt.Println("\n=== SESSION STATUS ===")
	if s.Track == nil {
		fmt.Println("No active track")
		return
	}
	fmt.Printf("Track: %s - %s\n", s.Track.Title, strings.Join(s.Track.Artists, ", "))
	fmt.Printf("Playlist: %s (%s)\n", s.PlaylistName, s.PlaylistID)
	fmt.Printf("Queue: %d/%d\n", s.TrackIndex+1, s.QueueSize)
	fmt.Printf("Playing: %t\n", s.IsPlaying)
	fmt.Printf("Position: %.1fs (%.0f%%)\n", s.Position, s.Progress)
	fmt.Printf("Shuffle: %t  Repeat: %s  Volume: %d\n", s.Shuffle, s.Repeat, s.Volume)
}
