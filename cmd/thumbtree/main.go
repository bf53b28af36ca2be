package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/openmined/thumbtree/internal/config"
	"github.com/openmined/thumbtree/internal/thumbtree"
	"github.com/openmined/thumbtree/internal/utils"
	"github.com/openmined/thumbtree/internal/version"
	"github.com/openmined/thumbtree/internal/watch"
)

const configFileName = "config"

// logFile is the --log-file handle, closed by main
var logFile io.Closer

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "thumbtree SOURCE_DIR DEST_DIR",
		Short:   "Mirror a photo tree as reduced JPEG and video copies",
		Version: version.Detailed(),
		Args:    cobra.ExactArgs(2),
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setupLogging(cmd)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, args)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			// arguments are fine, failures from here on are not usage errors
			cmd.SilenceUsage = true
			asJSON, _ := cmd.Flags().GetBool("json")

			run := func(ctx context.Context) error {
				stats, err := thumbtree.Run(ctx, cfg)
				if printErr := printSummary(cmd.OutOrStdout(), stats, cfg.DryRun, asJSON); printErr != nil {
					return errors.Join(err, printErr)
				}
				return err
			}

			err = run(cmd.Context())
			if !cfg.Watch {
				return err
			}
			if err != nil {
				slog.Error("initial run failed", "error", err)
			}
			return watch.New(cfg.Source, cfg.WatchDelay, run, slog.Default()).Watch(cmd.Context())
		},
	}

	flags := cmd.PersistentFlags()
	flags.SortFlags = false
	flags.StringP("config", "c", "", "config file (default "+config.DefaultConfigDir+"/config.yaml)")
	flags.Int("max-width", config.DefaultMaxWidth, "maximum width of rendered images and videos")
	flags.Int("max-height", config.DefaultMaxHeight, "maximum height of rendered images and videos")
	flags.Int("quality", config.DefaultQuality, "JPEG quality, 1-100")
	flags.Int("video-crf", config.DefaultVideoCRF, "x264 constant rate factor, 0-51")
	flags.IntP("workers", "j", config.DefaultWorkers, "concurrent renders per directory, 0 for one per CPU core")
	flags.BoolP("dry-run", "n", false, "log what would change without touching the destination")
	flags.BoolP("watch", "w", false, "keep running and mirror changes as they happen")
	flags.Bool("json", false, "print the run summary as JSON")
	flags.BoolP("verbose", "v", false, "enable debug logging")
	flags.String("log-file", "", "also write logs to this file")

	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newConfigCmd())
	return cmd
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rootCmd := newRootCmd()
	rootCmd.SilenceErrors = true
	err := rootCmd.ExecuteContext(ctx)
	if logFile != nil {
		logFile.Close()
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, red.Render("Error: "+err.Error()))
		os.Exit(1)
	}
}

func setupLogging(cmd *cobra.Command) error {
	level := slog.LevelInfo
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		level = slog.LevelDebug
	}

	var handler slog.Handler = tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: "15:04:05.000",
		NoColor:    !isatty.IsTerminal(os.Stderr.Fd()),
	})

	if path, _ := cmd.Flags().GetString("log-file"); path != "" {
		path, err := utils.ResolvePath(path)
		if err != nil {
			return fmt.Errorf("log file: %w", err)
		}
		if err := utils.EnsureParent(path); err != nil {
			return fmt.Errorf("log file: %w", err)
		}
		file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("log file: %w", err)
		}
		logFile = file
		handler = utils.NewFanoutHandler(handler, slog.NewTextHandler(file, &slog.HandlerOptions{Level: level}))
	}

	slog.SetDefault(slog.New(handler))
	return nil
}

// loadConfig layers defaults, the config file, THUMBTREE_* variables, flags
// and the positional directories, in increasing order of precedence.
func loadConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	v := viper.New()
	config.SetDefaults(v)

	if cmd.Flags().Changed("config") {
		configFilePath, _ := cmd.Flags().GetString("config")
		v.SetConfigFile(configFilePath)
	} else {
		v.AddConfigPath(config.DefaultConfigDir)
		v.SetConfigName(configFileName)
	}

	if err := v.ReadInConfig(); err != nil {
		enoent := errors.Is(err, os.ErrNotExist)
		_, ok := err.(viper.ConfigFileNotFoundError)
		if !enoent && !ok {
			return nil, fmt.Errorf("config read '%s': %w", v.ConfigFileUsed(), err)
		}
	}

	for key, flag := range map[string]string{
		"max_width":  "max-width",
		"max_height": "max-height",
		"quality":    "quality",
		"video_crf":  "video-crf",
		"workers":    "workers",
		"dry_run":    "dry-run",
		"watch":      "watch",
	} {
		if err := v.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
			return nil, fmt.Errorf("bind flag %s: %w", flag, err)
		}
	}

	v.SetEnvPrefix("THUMBTREE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if len(args) == 2 {
		v.Set("source", args[0])
		v.Set("dest", args[1])
	}

	return config.FromViper(v)
}
