package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/birkland/millstone/drivers/fs"
	"github.com/birkland/millstone/metadata"
	"github.com/gobwas/glob"
	"github.com/karrick/godirwalk"
	"github.com/pkg/errors"
	"github.com/urfave/cli"
)

var lsOpts = struct {
	match string
}{}

var ls cli.Command = cli.Command{
	Name:  "ls",
	Usage: "List cached content",
	Description: `List the files in the cache along with the urls they were
	downloaded from.

	Listing can be restricted to urls matching a glob, e.g.

	  millstone ls --match 'https://*.example.com/**.zip'`,
	Flags: []cli.Flag{
		cli.StringFlag{
			Name:        "match, m",
			Usage:       "Show only content from urls matching this glob",
			Destination: &lsOpts.match,
		},
	},

	Action: func(c *cli.Context) error {
		return lsAction(c.Args())
	},
}

func lsAction(args []string) error {
	if len(args) != 0 {
		return fmt.Errorf("unexpected arguments %v", args)
	}

	cache, err := cacheDir()
	if err != nil {
		return err
	}

	var g glob.Glob
	if lsOpts.match != "" {
		if g, err = glob.Compile(lsOpts.match, '/'); err != nil {
			return errors.Wrapf(err, "bad glob %s", lsOpts.match)
		}
	}

	if !fs.Exists(cache) {
		return nil
	}

	return godirwalk.Walk(cache, &godirwalk.Options{
		Callback: func(fullpath string, de *godirwalk.Dirent) error {
			name := de.Name()
			if !de.IsRegular() || !strings.HasPrefix(name, ".") || strings.HasPrefix(name, fs.AtomicPrefix) {
				return nil
			}

			file := filepath.Join(filepath.Dir(fullpath), strings.TrimPrefix(name, "."))
			rec, err := metadata.Read(file)
			if err != nil || rec == nil || rec.URL == "" {
				return nil
			}

			if g != nil && !g.Match(rec.URL) {
				return nil
			}

			_, err = fmt.Fprintf(os.Stdout, "%s    %s\n", file, rec.URL)
			return err
		},
	})
}
