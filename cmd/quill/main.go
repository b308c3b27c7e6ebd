package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/atinylittleshell/quill/internal/analytics"
	"github.com/atinylittleshell/quill/internal/config"
	"github.com/atinylittleshell/quill/internal/connection"
	"github.com/atinylittleshell/quill/internal/core"
	"github.com/atinylittleshell/quill/internal/study"
	"github.com/atinylittleshell/quill/internal/termtitle"
	"github.com/atinylittleshell/quill/pkg/composer"
	"github.com/atinylittleshell/quill/pkg/suggestion"
	"github.com/dustin/go-humanize"
	"go.uber.org/zap"
	"golang.org/x/term"
)

var BUILD_VERSION = "dev"

var configPath = flag.String("config", "", "use a custom config file instead of ~/.config/quill/config.yaml")
var configureFlag = flag.Bool("configure", false, "open the interactive settings editor")
var serverURL = flag.String("server", "", "suggestion service websocket url")
var token = flag.String("token", "", "bearer token for the suggestion service")
var noSuggest = flag.Bool("no-suggest", false, "start with suggestions turned off")
var statsFlag = flag.Bool("stats", false, "print suggestion and study statistics")

var helpFlag = flag.Bool("h", false, "display help information")
var versionFlag = flag.Bool("ver", false, "display build version")

func main() {
	flag.Parse()

	if *versionFlag {
		fmt.Println(BUILD_VERSION)
		return
	}

	if *helpFlag {
		fmt.Println("Usage of quill: quill [flags] [file]")
		flag.PrintDefaults()
		return
	}

	path := *configPath
	if path == "" {
		path = core.ConfigFile()
	}

	cfg, err := config.Load(path, zap.NewNop())
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	applyFlags(&cfg)

	if *configureFlag {
		if err := config.RunEditor(path, cfg); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}

	logger, err := initializeLogger(cfg)
	if err != nil {
		panic(err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	logger.Info("-------- new quill session --------", zap.Any("args", os.Args))

	analyticsManager, err := analytics.NewAnalyticsManager(core.AnalyticsFile(), logger)
	if err != nil {
		panic("failed to initialize analytics manager")
	}
	defer func() {
		_ = analyticsManager.Close()
	}()

	tracker, err := study.NewTracker(core.StudyFile(), cfg.StudyIdle(), logger)
	if err != nil {
		panic("failed to initialize study tracker")
	}
	defer func() {
		_ = tracker.Close()
	}()

	if *statsFlag {
		if err := printStats(os.Stdout, analyticsManager, tracker); err != nil {
			logger.Error("failed to read statistics", zap.Error(err))
			os.Exit(1)
		}
		return
	}

	if err := run(cfg, analyticsManager, tracker, logger); err != nil {
		logger.Error("unhandled error", zap.Error(err))
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func applyFlags(cfg *config.Config) {
	if *serverURL != "" {
		cfg.Server.URL = *serverURL
	}
	if *token != "" {
		cfg.Server.Token = *token
	}
	if *noSuggest {
		cfg.Suggest.Enabled = false
	}
}

func run(cfg config.Config, analyticsManager *analytics.AnalyticsManager, tracker *study.Tracker, logger *zap.Logger) error {
	if err := requireTerminal(os.Stdin); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM)
	defer stop()

	file := flag.Arg(0)
	text, err := readInitialText(file)
	if err != nil {
		return err
	}

	conn := connection.New(cfg.Server.URL,
		connection.WithLogger(logger),
		connection.WithTokenSource(connection.StaticToken(cfg.Server.Token)),
	)

	terminal := termtitle.New()
	if err := terminal.SetTitle(termtitle.DocumentTitle(file)); err != nil {
		logger.Debug("terminal title not set", zap.Error(err))
	} else {
		defer func() {
			_ = terminal.Reset()
		}()
	}

	var activity composer.ActivityTracker = composer.NoopTracker{}
	if cfg.Study.Enabled {
		activity = tracker
	}

	final, err := composer.Run(ctx, text, conn, activity, analyticsManager, logger, composerOptions(cfg))
	if endErr := tracker.End(); endErr != nil {
		logger.Warn("failed to close study session", zap.Error(endErr))
	}
	if err != nil {
		return err
	}

	if file == "" {
		_, err = io.WriteString(os.Stdout, final)
		return err
	}
	return os.WriteFile(file, []byte(final), 0644)
}

func composerOptions(cfg config.Config) composer.Options {
	options := composer.NewOptions()
	options.SuggestionsEnabled = cfg.Suggest.Enabled
	options.QuietPeriod = cfg.QuietPeriod()
	options.Session = suggestion.Options{
		MinLength:         cfg.Suggest.MinWordLength,
		MaxItems:          cfg.Suggest.MaxSuggestions,
		StrictCorrelation: cfg.Suggest.StrictCorrelation,
		ReplyTimeout:      suggestion.DefaultReplyTimeout,
	}
	options.PopupWidth = cfg.Popup.Width
	options.MinMargin = cfg.Popup.MinMargin
	return options
}

var errNotATerminal = errors.New("quill needs an interactive terminal on stdin")

// requireTerminal refuses to start the editor when keys cannot be read from f.
func requireTerminal(f *os.File) error {
	if !term.IsTerminal(int(f.Fd())) {
		return errNotATerminal
	}
	return nil
}

// readInitialText returns the file's contents, or nothing for a new file.
func readInitialText(file string) (string, error) {
	if file == "" {
		return "", nil
	}
	data, err := os.ReadFile(file)
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", file, err)
	}
	return string(data), nil
}

func printStats(w io.Writer, analyticsManager *analytics.AnalyticsManager, tracker *study.Tracker) error {
	summary, err := analyticsManager.Summarize(5)
	if err != nil {
		return err
	}
	total, err := tracker.TotalTime()
	if err != nil {
		return err
	}
	sessions, err := tracker.GetRecentSessions(1)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "Suggestions offered: %s\n", humanize.Comma(summary.Total))
	fmt.Fprintf(w, "Suggestions accepted: %s (%.0f%%)\n", humanize.Comma(summary.Accepted), summary.AcceptanceRate()*100)
	if summary.Total > 0 {
		fmt.Fprintf(w, "First offer: %s\n", humanize.Time(summary.First))
		fmt.Fprintf(w, "Last offer: %s\n", humanize.Time(summary.Last))
	}
	writeCounts(w, "Most looked up", summary.TopWords)
	writeCounts(w, "Most picked", summary.TopPicks)

	fmt.Fprintf(w, "Time studied: %s\n", formatDuration(total))
	if len(sessions) > 0 {
		fmt.Fprintf(w, "Last session: %s, %s\n", humanize.Time(sessions[0].StartedAt), formatDuration(sessions[0].Duration()))
	}
	return nil
}

func writeCounts(w io.Writer, title string, counts []analytics.Count) {
	if len(counts) == 0 {
		return
	}
	parts := make([]string, 0, len(counts))
	for _, c := range counts {
		parts = append(parts, fmt.Sprintf("%s (%d)", c.Value, c.Count))
	}
	fmt.Fprintf(w, "%s: %s\n", title, strings.Join(parts, ", "))
}

func formatDuration(d time.Duration) string {
	return d.Round(time.Second).String()
}

func initializeLogger(cfg config.Config) (*zap.Logger, error) {
	logLevel := cfg.LogLevel()
	if BUILD_VERSION == "dev" {
		logLevel = zap.NewAtomicLevelAt(zap.DebugLevel)
	}

	if cfg.Log.Clean {
		_ = os.Remove(core.LogFile())
	}

	loggerConfig := zap.NewProductionConfig()
	loggerConfig.Level = logLevel
	loggerConfig.OutputPaths = []string{
		core.LogFile(),
	}
	return loggerConfig.Build()
}
