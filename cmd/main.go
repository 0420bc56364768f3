// The cirrus CLI composes an environment's resource graph from a CUE
// configuration file and synthesizes the artifacts the provisioning engine
// consumes. No cloud API is ever touched here.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v2"

	"github.com/telhaus/cirrus/internal/config"
	"github.com/telhaus/cirrus/internal/stack"
	"github.com/telhaus/cirrus/internal/synth"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	app := &cli.App{
		Name:    "cirrus",
		Usage:   "compose and synthesize cloud environment resource graphs",
		Version: fmt.Sprintf("%s (commit: %s)", version, commit),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Value:   "info",
				Usage:   "log level (debug, info, warn, error)",
				EnvVars: []string{"CIRRUS_LOG_LEVEL"},
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "synth",
				Usage: "compose the environment and write engine artifacts",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "config",
						Aliases:  []string{"c"},
						Usage:    "environment CUE file",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "out",
						Value: "dist",
						Usage: "output directory",
					},
					&cli.StringFlag{
						Name:  "format",
						Value: "all",
						Usage: "artifact format (hcl, json, all)",
					},
				},
				Action: runSynth,
			},
			{
				Name:  "graph",
				Usage: "compose the environment and print its dependency graph as DOT",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "config",
						Aliases:  []string{"c"},
						Usage:    "environment CUE file",
						Required: true,
					},
				},
				Action: runGraph,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		slog.Error("cirrus failed", "error", err)
		os.Exit(1)
	}
}

func newLogger(c *cli.Context) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.String("log-level"))); err != nil {
		level = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func compose(c *cli.Context, log *slog.Logger) (*stack.Build, error) {
	path := c.String("config")
	env, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	log.Debug("configuration loaded", "environment", env.Name, "region", env.Region, "zones", len(env.Zones))

	build, err := stack.Compose(env)
	if err != nil {
		return nil, err
	}
	log.Info("environment composed",
		"environment", env.Name,
		"nodes", len(build.Graph.Nodes),
		"edges", len(build.Graph.Edges),
		"hash", build.Graph.Metadata.RenderHash,
		"pass", build.Graph.Metadata.PassID,
	)
	return build, nil
}

func runSynth(c *cli.Context) error {
	log := newLogger(c)
	build, err := compose(c, log)
	if err != nil {
		return err
	}

	format := c.String("format")
	switch format {
	case "hcl", "json", "all":
	default:
		return fmt.Errorf("unknown format %q", format)
	}

	out := c.String("out")
	if err := os.MkdirAll(out, 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}

	renderer := &synth.Renderer{}
	if format == "hcl" || format == "all" {
		data, err := renderer.HCL(build.Graph)
		if err != nil {
			return err
		}
		path := filepath.Join(out, "main.tf")
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return err
		}
		log.Info("artifact written", "path", path)
	}
	if format == "json" || format == "all" {
		data, err := renderer.JSON(build.Graph)
		if err != nil {
			return err
		}
		path := filepath.Join(out, "graph.json")
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return err
		}
		log.Info("artifact written", "path", path)
	}
	return nil
}

func runGraph(c *cli.Context) error {
	log := newLogger(c)
	build, err := compose(c, log)
	if err != nil {
		return err
	}
	fmt.Print(build.Graph.DOT())
	return nil
}
