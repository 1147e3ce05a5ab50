// Package main provides the storyline player entry point.
package main

import (
	"bufio"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/joho/godotenv"
	zlog "github.com/rs/zerolog/log"

	"github.com/tm038/storyline/internal/app/control"
	"github.com/tm038/storyline/internal/app/engine"
	"github.com/tm038/storyline/internal/domain/story"
	"github.com/tm038/storyline/internal/infra/config"
	"github.com/tm038/storyline/internal/infra/logger"
)

var (
	app        = kingpin.New("storyline-player", "Timed sequential story playback")
	configPath = app.Flag("config", "Path to config file").Default("config/player.yaml").String()
	verbose    = app.Flag("verbose", "Enable verbose (DEBUG) logging").Short('v').Bool()
	logfile    = app.Flag("logfile", "Path to log file (default: stderr)").String()

	// list-kinds command
	listKindsCmd = app.Command("list-kinds", "List supported item kinds and exit")
)

func init() {
	// play command (default)
	app.Command("play", "Play the configured story (default)").Default()
}

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	if command == listKindsCmd.FullCommand() {
		printKinds()
		return
	}

	// Initialize logger. Stderr keeps log lines off the progress display.
	loggerConfig := logger.Config{
		Output: "stderr",
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

	zlog.Info().Msgf("Loading config from %s", *configPath)
	cfg, err := config.Load(*configPath)
	if err != nil {
		zlog.Fatal().Msgf("Failed to load config: %v", err)
	}

	if err := run(cfg); err != nil {
		zlog.Error().Msgf("Player error: %v", err)
		os.Exit(1)
	}
}

// run executes the main player logic. Using a separate function ensures defer
// statements execute even when returning with an error.
func run(cfg *config.Config) error {
	items, err := cfg.BuildItems()
	if err != nil {
		return fmt.Errorf("failed to build items: %w", err)
	}

	seq, err := story.NewSequence(items, cfg.Player.StartIndex)
	if err != nil {
		return fmt.Errorf("failed to build sequence: %w", err)
	}

	hub := control.NewHub()
	defer hub.Close()

	done := make(chan struct{})
	eng := engine.New(seq, engine.Config{
		Repeat:      cfg.Player.Repeat,
		ResumeHold:  cfg.Player.ResumeHold(),
		Tick:        cfg.Player.Tick(),
		FastForward: cfg.Player.FastForward(),
		OnItemShown: func(item *story.Item, index int) {
			zlog.Info().Msgf("showing %s (%s, %d/%d)", item.ID, item.Kind, index+1, seq.Len())
		},
	}, hub)
	defer eng.Dispose()

	// Drain engine events; a completion without repeat ends the run.
	go func() {
		for ev := range eng.Events() {
			zlog.Debug().Msgf("event %s (state=%s)", ev.Type, ev.State)
			if ev.Type == engine.EventCompleted && !cfg.Player.Repeat {
				close(done)
				return
			}
		}
	}()

	// Map stdin keys to control commands.
	go readCommands(hub)

	// Progress display.
	stopRender := make(chan struct{})
	defer close(stopRender)
	go renderProgress(eng, stopRender)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	zlog.Info().Msgf("Starting playback: %d items (repeat=%v)", seq.Len(), cfg.Player.Repeat)
	zlog.Info().Msg("Keys: [p]lay [s]top/pause [n]ext [b]ack [q]uit")
	eng.Start()

	select {
	case <-done:
		fmt.Println()
		zlog.Info().Msg("Playback completed")
	case sig := <-sigCh:
		fmt.Println()
		zlog.Info().Msgf("Received %s, shutting down", sig)
	}
	return nil
}

// readCommands reads single-letter commands from stdin and publishes them.
func readCommands(hub *control.Hub) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		switch strings.TrimSpace(strings.ToLower(scanner.Text())) {
		case "p", "play":
			hub.Publish(control.Play)
		case "s", "pause":
			hub.Publish(control.Pause)
		case "n", "next":
			hub.Publish(control.Next)
		case "b", "prev", "previous":
			hub.Publish(control.Previous)
		case "q", "quit":
			p, _ := os.FindProcess(os.Getpid())
			_ = p.Signal(syscall.SIGINT)
			return
		}
	}
}

// renderProgress prints a one-line progress bar for the current item.
func renderProgress(eng *engine.Engine, stop <-chan struct{}) {
	const width = 30
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			item, index, ok := eng.CurrentItem()
			if !ok {
				continue
			}
			_, frac := eng.Progress()
			filled := int(frac * width)
			bar := strings.Repeat("=", filled) + strings.Repeat(" ", width-filled)
			fmt.Printf("\r%2d %-10s [%s] %3.0f%% %-8s", index+1, item.ID, bar, frac*100, eng.GetState())
		}
	}
}

// printKinds prints the supported item kinds.
func printKinds() {
	for _, k := range []story.Kind{story.KindImage, story.KindVideo, story.KindText} {
		fmt.Println(k)
	}
}
