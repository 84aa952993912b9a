package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/urfave/cli"
	slogcontext "github.com/veqryn/slog-context"
)

var mainOpts = struct {
	cache   string
	base    string
	verbose bool
}{}

func main() {
	app := cli.NewApp()
	app.Name = "millstone"
	app.Usage = "Localize the external resources of map projects"
	app.EnableBashCompletion = true
	app.Commands = []cli.Command{
		resolve,
		flush,
		ls,
	}
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:        "cache, c",
			Usage:       "Cache directory for downloaded content",
			EnvVar:      "MILLSTONE_CACHE",
			Destination: &mainOpts.cache,
		},
		cli.StringFlag{
			Name:        "base, b",
			Usage:       "Project directory (defaults to the directory of the project file)",
			EnvVar:      "MILLSTONE_BASE",
			Destination: &mainOpts.base,
		},
		cli.BoolFlag{
			Name:        "verbose, v",
			Usage:       "Log debug output",
			Destination: &mainOpts.verbose,
		},
	}

	err := app.Run(os.Args)
	if err != nil {
		log.Fatal(err)
	}
}

func newContext() context.Context {
	level := slog.LevelInfo
	if mainOpts.verbose {
		level = slog.LevelDebug
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	return slogcontext.NewCtx(context.Background(), logger)
}

func cacheDir() (string, error) {
	if mainOpts.cache != "" {
		return mainOpts.cache, nil
	}

	dir, err := os.UserCacheDir()
	if err != nil {
		return "", errors.Wrap(err, "no cache directory given, and no user cache directory to default to")
	}
	return filepath.Join(dir, "millstone"), nil
}

func baseDir(project string) (string, error) {
	if mainOpts.base != "" {
		return mainOpts.base, nil
	}

	if project != "" {
		return filepath.Dir(project), nil
	}

	pwd, err := os.Getwd()
	if err != nil {
		return "", errors.Wrap(err, "could not get pwd")
	}
	return pwd, nil
}
