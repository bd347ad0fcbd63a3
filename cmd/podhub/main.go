package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/matthewjhunter/podhub"
	"github.com/matthewjhunter/podhub/internal/config"
	"github.com/matthewjhunter/podhub/internal/output"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	configPath   string
	cfg          *config.Config
	logger       *logrus.Logger
	outputFormat string
	formatter    *output.Formatter
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "podhub",
		Short:         "Subscribe to podcasts from share links and keep track of what you play",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return loadConfig()
		},
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file path, .yaml or .toml (default: ./config/config.yaml)")
	root.PersistentFlags().StringVarP(&outputFormat, "format", "f", "human", "output format: json, text, human")

	root.AddCommand(addCmd())
	root.AddCommand(listCmd())
	root.AddCommand(showCmd())
	root.AddCommand(episodesCmd())
	root.AddCommand(removeCmd())
	root.AddCommand(refreshCmd())
	root.AddCommand(playCmd())
	root.AddCommand(progressCmd())
	root.AddCommand(favCmd())
	root.AddCommand(favoritesCmd())
	root.AddCommand(historyCmd())
	root.AddCommand(statsCmd())
	root.AddCommand(importCmd())
	root.AddCommand(initConfigCmd())
	root.AddCommand(daemonCmd())
	return root
}

func loadConfig() error {
	if configPath == "" {
		configPath = "./config/config.yaml"
	}

	format, err := output.ParseFormat(outputFormat)
	if err != nil {
		return err
	}
	formatter = output.NewFormatter(format)

	cfg, err = config.Load(configPath)
	if err != nil {
		return err
	}
	logger, err = cfg.Log.NewLogger(os.Stderr)
	return err
}

// openEngine opens the engine described by the loaded config. Callers close it.
func openEngine() (*podhub.Engine, error) {
	engine, err := podhub.NewEngine(podhub.EngineConfig{Config: cfg, Logger: logger})
	if err != nil {
		return nil, fmt.Errorf("failed to open engine: %w", err)
	}
	return engine, nil
}

func parseID(arg, what string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s ID: %q", what, arg)
	}
	return id, nil
}

func addCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add <share-url>",
		Short: "Subscribe to a podcast from a share link or feed URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := openEngine()
			if err != nil {
				return err
			}
			defer engine.Close()

			show, err := engine.AddPodcast(cmd.Context(), args[0])
			if err != nil {
				if podhub.IsRetryable(err) {
					formatter.Warning("the failure looks temporary; try again later")
				}
				return err
			}
			return formatter.OutputShow(show)
		},
	}
}

func listCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List subscribed podcasts, most recent first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := openEngine()
			if err != nil {
				return err
			}
			defer engine.Close()

			shows, err := engine.ListPodcasts()
			if err != nil {
				return err
			}
			return formatter.OutputShowList(shows, "No podcasts yet. Add one with: podhub add <share-url>")
		},
	}
}

func showCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <show-id>",
		Short: "Show details for one podcast",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "show")
			if err != nil {
				return err
			}
			engine, err := openEngine()
			if err != nil {
				return err
			}
			defer engine.Close()

			show, err := engine.GetPodcast(id)
			if err != nil {
				return err
			}
			return formatter.OutputShow(show)
		},
	}
}

func episodesCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "episodes <show-id>",
		Short: "List a podcast's episodes, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "show")
			if err != nil {
				return err
			}
			engine, err := openEngine()
			if err != nil {
				return err
			}
			defer engine.Close()

			eps, err := engine.ListEpisodes(id)
			if err != nil {
				return err
			}
			if limit > 0 && len(eps) > limit {
				eps = eps[:limit]
			}
			return formatter.OutputEpisodes(eps)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "show at most this many episodes (0 = all)")
	return cmd
}

func removeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <show-id>",
		Short: "Unsubscribe from a podcast (play history is kept)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "show")
			if err != nil {
				return err
			}
			engine, err := openEngine()
			if err != nil {
				return err
			}
			defer engine.Close()

			if err := engine.RemovePodcast(id); err != nil {
				return err
			}
			return formatter.OutputMessage(fmt.Sprintf("Removed show %d", id))
		},
	}
}

func refreshCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "refresh [show-id]",
		Short: "Re-read feeds and pick up new episodes (all shows when no ID is given)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := openEngine()
			if err != nil {
				return err
			}
			defer engine.Close()

			if len(args) == 0 {
				res, err := engine.RefreshAll(cmd.Context())
				if err != nil {
					return err
				}
				return formatter.OutputRefreshAll(res)
			}

			id, err := parseID(args[0], "show")
			if err != nil {
				return err
			}
			res, err := engine.RefreshPodcast(cmd.Context(), id)
			if err != nil {
				return err
			}
			return formatter.OutputRefresh(res)
		},
	}
}

func playCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "play <episode-id>",
		Short: "Record a play and print the episode's audio URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "episode")
			if err != nil {
				return err
			}
			engine, err := openEngine()
			if err != nil {
				return err
			}
			defer engine.Close()

			res, err := engine.Play(id)
			if err != nil {
				return err
			}
			return formatter.OutputPlay(res)
		},
	}
}

func progressCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "progress <episode-id> <seconds>",
		Short: "Save how far into an episode you are",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "episode")
			if err != nil {
				return err
			}
			seconds, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid progress %q: want whole seconds", args[1])
			}
			engine, err := openEngine()
			if err != nil {
				return err
			}
			defer engine.Close()

			ep, err := engine.UpdateProgress(id, seconds)
			if err != nil {
				return err
			}
			return formatter.OutputProgress(ep)
		},
	}
}

func favCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fav <show-id>",
		Short: "Toggle a podcast's favorite flag",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "show")
			if err != nil {
				return err
			}
			engine, err := openEngine()
			if err != nil {
				return err
			}
			defer engine.Close()

			on, err := engine.ToggleFavorite(id)
			if err != nil {
				return err
			}
			return formatter.OutputFavorite(id, on)
		},
	}
}

func favoritesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "favorites",
		Short: "List favorite podcasts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := openEngine()
			if err != nil {
				return err
			}
			defer engine.Close()

			shows, err := engine.ListFavorites()
			if err != nil {
				return err
			}
			return formatter.OutputShowList(shows, "No favorites yet")
		},
	}
}

func historyCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recently played episodes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := openEngine()
			if err != nil {
				return err
			}
			defer engine.Close()

			entries, err := engine.ListHistory(limit)
			if err != nil {
				return err
			}
			return formatter.OutputHistory(entries)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "number of entries (0 = configured default; capped at history.max_limit)")
	return cmd
}

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show listening statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := openEngine()
			if err != nil {
				return err
			}
			defer engine.Close()

			stats, err := engine.Stats()
			if err != nil {
				return err
			}
			return formatter.OutputStats(stats)
		},
	}
}

func importCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <opml-file>",
		Short: "Subscribe to every feed in an OPML export",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := openEngine()
			if err != nil {
				return err
			}
			defer engine.Close()

			res, err := engine.ImportOPML(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("failed to import OPML: %w", err)
			}
			return formatter.OutputImport(res)
		},
	}
}

func initConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init-config",
		Short: "Create a default config file",
		Args:  cobra.NoArgs,
		// Skip loadConfig: the file being created may not parse yet.
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
		RunE: func(cmd *cobra.Command, args []string) error {
			if configPath == "" {
				configPath = "./config/config.yaml"
			}
			if _, err := os.Stat(configPath); err == nil {
				return fmt.Errorf("config file already exists: %s", configPath)
			}
			if err := config.Default().WriteYAML(configPath); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created default config at %s\n", configPath)
			return nil
		},
	}
}
