// Command mediacached serves media assets from a storage backend through a
// shared chunk cache.
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "mediacached:", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "mediacached",
		Usage: "stream media from remote storage through a shared chunk cache",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				EnvVars: []string{"MEDIACACHED_CONFIG"},
				Usage:   "path to the YAML configuration file",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "log level (debug, info, warn, error)",
			},
			&cli.StringFlag{
				Name:  "log-format",
				Usage: "log format (text, json)",
			},
			&cli.StringFlag{
				Name:  "backend-root",
				Usage: "serve a local directory instead of the configured backend",
			},
		},
		Commands: []*cli.Command{
			serveFlags(),
			scanFlags(),
		},
	}
}
