// submodule cmd contains command definitions
package main

import "github.com/urfave/cli/v3"

func configFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to configuration file",
		Value:   "config.toml",
	}
}

func jsonFlag() cli.Flag {
	return &cli.BoolFlag{
		Name:  "json",
		Usage: "Output raw JSON",
	}
}

// setupCommand handles configuration and database initialization.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Setup and configuration commands",
		Commands: []*cli.Command{
			{
				Name:   "config",
				Usage:  "Write a config.toml populated with defaults",
				Flags:  []cli.Flag{configFlag()},
				Action: r.SetupConfig,
			},
			{
				Name:   "database",
				Usage:  "Initialize database and run migrations",
				Flags:  []cli.Flag{configFlag()},
				Action: r.SetupDatabase,
			},
			{
				Name:   "rollback",
				Usage:  "Roll back the most recent database migration",
				Action: r.SetupRollback,
			},
		},
	}
}

// parseCommand prints the entries read from a playlist file.
func parseCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "parse",
		Usage: "Parse a playlist file and list its entries",
		Arguments: []cli.Argument{
			&cli.StringArg{Name: "file"},
		},
		Flags: []cli.Flag{
			jsonFlag(),
			&cli.BoolFlag{
				Name:  "keys",
				Usage: "Show normalized search keys",
			},
		},
		Action: r.Parse,
	}
}

// searchCommand scores catalog candidates for one track.
func searchCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "search",
		Usage: "Search the catalog for a track and show scored candidates",
		Arguments: []cli.Argument{
			&cli.StringArg{Name: "artist"},
			&cli.StringArg{Name: "title"},
		},
		Flags: []cli.Flag{
			jsonFlag(),
			&cli.IntFlag{
				Name:  "duration",
				Usage: "Local track duration in seconds",
			},
			&cli.BoolFlag{
				Name:  "no-cache",
				Usage: "Bypass the persistent candidate cache",
			},
		},
		Action: r.Search,
	}
}

// reconcileCommand runs and inspects playlist reconciliation.
func reconcileCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "reconcile",
		Aliases: []string{"sync"},
		Usage:   "Reconcile playlist files against the catalog",
		Commands: []*cli.Command{
			{
				Name:      "run",
				Usage:     "Resolve every entry of the given playlists and write accepted tracks",
				ArgsUsage: "<playlist or directory>...",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:    "parallel",
						Aliases: []string{"p"},
						Usage:   "Playlists processed at once",
						Value:   2,
					},
					&cli.BoolFlag{
						Name:  "dry-run",
						Usage: "Decide and remember, but do not write playlists or advance sync state",
					},
					&cli.BoolFlag{
						Name:  "force-full",
						Usage: "Ignore stored sync state and resolve every entry",
					},
					&cli.BoolFlag{
						Name:  "no-review",
						Usage: "Never prompt; ambiguous matches are deferred",
					},
					&cli.StringFlag{
						Name:  "report",
						Usage: "Write a report (.md, .csv, .txt or .json)",
					},
					&cli.BoolFlag{
						Name:  "report-all",
						Usage: "Include accepted entries in the report",
					},
					jsonFlag(),
				},
				Action: r.ReconcileRun,
			},
			{
				Name:      "status",
				Usage:     "Show which playlists changed since their last sync",
				ArgsUsage: "<playlist or directory>...",
				Flags:     []cli.Flag{jsonFlag()},
				Action:    r.ReconcileStatus,
			},
		},
	}
}

// memoryCommand inspects and clears remembered decisions.
func memoryCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "memory",
		Usage: "Inspect remembered match decisions",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List remembered decisions",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "playlist"},
				},
				Flags:  []cli.Flag{jsonFlag()},
				Action: r.MemoryList,
			},
			{
				Name:  "clear",
				Usage: "Forget every decision for a playlist",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "playlist"},
				},
				Action: r.MemoryClear,
			},
		},
	}
}

// runsCommand lists recorded reconcile runs.
func runsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "runs",
		Usage: "Reconcile run history",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List recent runs",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum number of runs to show",
						Value: 20,
					},
					&cli.BoolFlag{
						Name:  "failed",
						Usage: "Only show runs that stopped on a fatal error",
					},
					jsonFlag(),
				},
				Action: r.RunsList,
			},
		},
	}
}

// cacheCommand manages the persistent candidate cache.
func cacheCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "cache",
		Usage: "Manage cached catalog search results",
		Commands: []*cli.Command{
			{
				Name:  "prune",
				Usage: "Delete cached results older than the configured TTL",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "max-age",
						Usage: "Maximum age in hours (default: search.cache_ttl_hours)",
					},
				},
				Action: r.CachePrune,
			},
		},
	}
}
