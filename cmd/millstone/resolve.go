package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/birkland/millstone"
	"github.com/birkland/millstone/download"
	"github.com/birkland/millstone/drivers/fs"
	"github.com/birkland/millstone/resolv"
	"github.com/pkg/errors"
	"github.com/urfave/cli"
	"sigs.k8s.io/yaml"
)

var resolveOpts = struct {
	nosymlink bool
	benchmark bool
	link      string
	workers   int
}{}

var resolve cli.Command = cli.Command{
	Name:  "resolve",
	Usage: "Localize the stylesheets and layers of a project",
	Description: `Given a project file (.mml JSON, or YAML), download remote
	stylesheets and datasources into the cache, link them into the project's
	layers directory, detect layer datasource types and SRS, and print the
	resolved project as JSON.

	For example, the following resolves a project using a shared cache

	  millstone --cache ~/.cache/maps resolve project.mml > resolved.mml

	With --nosymlink, local files stay where they are and remote ones in the
	cache; nothing is placed in the layers directory.`,
	ArgsUsage: "project",
	Flags: []cli.Flag{
		cli.BoolFlag{
			Name:        "nosymlink",
			Usage:       "Do not link files into the project",
			Destination: &resolveOpts.nosymlink,
		},
		cli.BoolFlag{
			Name:        "benchmark",
			Usage:       "Log the time taken by each resolution stage",
			Destination: &resolveOpts.benchmark,
		},
		cli.StringFlag{
			Name:        "link, l",
			Usage:       "Link mode {symlink, copy}, by default symlink where supported",
			Destination: &resolveOpts.link,
		},
		cli.IntFlag{
			Name:        "workers, w",
			Usage:       "Maximum number of requests in flight",
			Value:       download.DefaultWorkers,
			Destination: &resolveOpts.workers,
		},
	},

	Action: func(c *cli.Context) error {
		return resolveAction(c.Args())
	},
}

func resolveAction(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("expected exactly one project file")
	}

	project, err := loadProject(args[0])
	if err != nil {
		return err
	}

	cache, err := cacheDir()
	if err != nil {
		return err
	}

	base, err := baseDir(args[0])
	if err != nil {
		return err
	}

	linker, err := fs.NewLinker(fs.Config{Mode: resolveOpts.link})
	if err != nil {
		return err
	}

	downloader := download.New(download.Config{
		Workers:   resolveOpts.workers,
		UserAgent: "millstone",
	})
	defer downloader.Wait()

	resolved, err := resolv.Resolve(newContext(), project, resolv.Options{
		Base:        base,
		Cache:       cache,
		SkipLinking: resolveOpts.nosymlink,
		Benchmark:   resolveOpts.benchmark,
		Downloader:  downloader,
		Linker:      linker,
	})
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(resolved, "", "  ")
	if err != nil {
		return errors.Wrapf(err, "could not encode resolved project")
	}
	_, err = fmt.Fprintln(os.Stdout, string(out))
	return err
}

// loadProject reads a project file.  JSON is a subset of YAML, so .mml files and
// YAML projects alike go through the YAML decoder.
func loadProject(file string) (*millstone.Project, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, errors.Wrapf(err, "could not read project %s", file)
	}

	j, err := yaml.YAMLToJSON(data)
	if err != nil {
		return nil, errors.Wrapf(err, "could not parse project %s", file)
	}

	project := &millstone.Project{}
	if err := json.Unmarshal(j, project); err != nil {
		return nil, errors.Wrapf(err, "could not decode project %s", file)
	}
	return project, nil
}
