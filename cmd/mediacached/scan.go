package main

import (
	"fmt"

	"github.com/hupe1980/mediacache/catalog"
	"github.com/hupe1980/mediacache/codec"
	"github.com/urfave/cli/v2"
)

func scanFlags() *cli.Command {
	return &cli.Command{
		Name:   "scan",
		Usage:  "scan the backend once and print the catalog as JSON",
		Action: scan,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "write the catalog to this file instead of stdout",
			},
		},
	}
}

func scan(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	logger := newLogger(cfg)
	cd, _ := codec.ByName(cfg.Codec)

	var closers cleanup
	defer func() { _ = closers.run() }()

	backend, err := openBackend(c.Context, cfg.Backend, &closers)
	if err != nil {
		return err
	}

	cat := catalog.New(backend, catalogOptions(cfg.Catalog, logger)...)
	if _, err := cat.Refresh(c.Context); err != nil {
		return fmt.Errorf("scan: %w", err)
	}

	if out := c.String("output"); out != "" {
		return saveSnapshot(cat, out, cd)
	}
	return cat.Save(c.App.Writer, cd)
}
