package main

import (
	"fmt"

	"github.com/birkland/millstone/resolv"
	"github.com/urfave/cli"
)

var flushOpts = struct {
	layer string
	url   string
}{}

var flush cli.Command = cli.Command{
	Name:  "flush",
	Usage: "Remove a remote layer from the project and the cache",
	Description: `Remove the project link of a layer resolved from a url, and
	the cache entry holding that url's content.  The next resolution
	downloads it afresh.

	  millstone --base ./project flush --layer roads --url http://example.com/roads.zip

	Files copied into a project (rather than linked) are left alone.`,
	Flags: []cli.Flag{
		cli.StringFlag{
			Name:        "layer",
			Usage:       "Layer name",
			Destination: &flushOpts.layer,
		},
		cli.StringFlag{
			Name:        "url",
			Usage:       "Source url of the layer",
			Destination: &flushOpts.url,
		},
	},

	Action: func(c *cli.Context) error {
		return flushAction(c.Args())
	},
}

func flushAction(args []string) error {
	if len(args) != 0 {
		return fmt.Errorf("unexpected arguments %v", args)
	}

	cache, err := cacheDir()
	if err != nil {
		return err
	}

	base, err := baseDir("")
	if err != nil {
		return err
	}

	return resolv.Flush(newContext(), resolv.FlushOptions{
		Base:  base,
		Cache: cache,
		Layer: flushOpts.layer,
		URL:   flushOpts.url,
	})
}
