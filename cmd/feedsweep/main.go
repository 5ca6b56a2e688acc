// Command feedsweep cleans a social feed in a live browser.
//
// Usage:
//
//	feedsweep run -c feedsweep.yaml        # drive the feed until interrupted
//	feedsweep replay saved-feed.html       # dry run against a saved page
//	feedsweep ctl start                    # queue a command for a running engine
//	feedsweep state                        # print the persisted session
//	feedsweep journal -n 20                # print recently applied commands
package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/hazyhaar/feedsweep/sweeper"
	"github.com/hazyhaar/feedsweep/sweeper/message"
)

func main() {
	app := cli.App{
		Name:    "feedsweep",
		Usage:   "autonomous feed cleaning",
		Version: sweeper.Version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to feedsweep.yaml",
				EnvVars: []string{"FEEDSWEEP_CONFIG"},
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "log level: debug, info, warn, error (default from config)",
			},
		},
	}
	app.Commands = []*cli.Command{
		{
			Name:   "run",
			Usage:  "open the feed in Chrome and clean it until interrupted",
			Action: runEngine,
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "listen", Usage: "control API address (overrides config)"},
				&cli.BoolFlag{Name: "stdout", Usage: "print notifications as JSON lines"},
			},
		},
		{
			Name:      "replay",
			Usage:     "run the engine against a saved feed page and print a report",
			ArgsUsage: "<file.html>",
			Action:    runReplay,
			Flags: []cli.Flag{
				&cli.IntFlag{Name: "cycles", Value: 0, Usage: "main loop rounds after the filter pass"},
			},
		},
		{
			Name:      "ctl",
			Usage:     "queue a command for the running engine",
			ArgsUsage: "start | stop | filter <keyword> | nofilter | delay <s> | threshold <n> | toggle <key> on|off | pacing on|off | raw '<json>'",
			Action:    runCtl,
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "inbox", Usage: "command queue path (default from config)"},
			},
		},
		{
			Name:   "state",
			Usage:  "print the persisted session",
			Action: runState,
		},
		{
			Name:   "journal",
			Usage:  "print the most recent commands the engine applied or rejected",
			Action: runJournal,
			Flags: []cli.Flag{
				&cli.IntFlag{Name: "n", Value: 20, Usage: "number of entries"},
				&cli.StringFlag{Name: "inbox", Usage: "journal database path (default from config)"},
			},
		},
	}
	app.RunAndExitOnError()
}

func loadConfig(cctx *cli.Context) (*sweeper.Config, error) {
	if p := cctx.String("config"); p != "" {
		return sweeper.LoadConfigFile(p)
	}
	return sweeper.DefaultConfig(), nil
}

func newLogger(cctx *cli.Context, cfg *sweeper.Config) *slog.Logger {
	name := cfg.LogLevel
	if v := cctx.String("log-level"); v != "" {
		name = v
	}
	var level slog.Level
	switch name {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func runEngine(cctx *cli.Context) error {
	cfg, err := loadConfig(cctx)
	if err != nil {
		return err
	}
	if v := cctx.String("listen"); v != "" {
		cfg.Control.Listen = v
	}
	if cctx.Bool("stdout") {
		cfg.Control.Stdout = true
	}
	logger := newLogger(cctx, cfg)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(cctx.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("feedsweep: starting", "url", cfg.Page.URL, "store", cfg.Store.Driver, "listen", cfg.Control.Listen)
	if err := sweeper.Launch(ctx, cfg, logger); err != nil {
		logger.Error("feedsweep: fatal", "error", err)
		return err
	}
	return nil
}

func runReplay(cctx *cli.Context) error {
	path := cctx.Args().First()
	if path == "" {
		return cli.Exit("replay: need a saved feed file", 2)
	}
	cfg, err := loadConfig(cctx)
	if err != nil {
		return err
	}
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	rep, err := sweeper.Replay(cctx.Context, f, cfg, cctx.Int("cycles"), newLogger(cctx, cfg))
	if err != nil {
		return err
	}
	return printJSON(rep)
}

func runCtl(cctx *cli.Context) error {
	cmd, err := parseCtl(cctx.Args().Slice())
	if err != nil {
		return cli.Exit(err.Error(), 2)
	}
	cfg, err := loadConfig(cctx)
	if err != nil {
		return err
	}
	path := cctx.String("inbox")
	if path == "" {
		path = cfg.Control.Inbox
	}
	data, err := message.Encode(cmd)
	if err != nil {
		return err
	}
	id, err := sweeper.EnqueueCommand(cctx.Context, path, data, newLogger(cctx, cfg))
	if err != nil {
		return err
	}
	fmt.Println(id)
	return nil
}

func runState(cctx *cli.Context) error {
	cfg, err := loadConfig(cctx)
	if err != nil {
		return err
	}
	p, err := sweeper.ReadState(cctx.Context, cfg, newLogger(cctx, cfg))
	if err != nil {
		return err
	}
	return printJSON(p)
}

func runJournal(cctx *cli.Context) error {
	cfg, err := loadConfig(cctx)
	if err != nil {
		return err
	}
	path := cctx.String("inbox")
	if path == "" {
		path = cfg.Control.Inbox
	}
	entries, err := sweeper.ReadJournal(cctx.Context, path, cctx.Int("n"), newLogger(cctx, cfg))
	if err != nil {
		return err
	}
	return printJSON(entries)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
