package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/lupppig/bita/internal/config"
	apperrors "github.com/lupppig/bita/internal/errors"
	"github.com/lupppig/bita/internal/logger"
	"github.com/spf13/cobra"
)

const BITA_VERSION = "0.1.0"

var rootCmd = &cobra.Command{
	Use:   "bita",
	Short: "bita builds chunked archives and clones files from them using local seeds",
	Long: `bita splits a file into content-defined chunks and stores every unique chunk once,
compressed, in a single archive that can live on local disk, HTTP, S3, SFTP or FTP.
Cloning reads the archive's chunk dictionary, reuses every chunk it can find in local
seed files and fetches only what is missing, using byte-range reads.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := config.Initialize(configPath); err != nil {
			return err
		}
		cfg := config.GetConfig()

		if !cmd.Flags().Changed("json") {
			LogJSON = cfg.LogJSON
		}
		if !cmd.Flags().Changed("no-color") {
			NoColor = cfg.NoColor
		}
		if !cmd.Flags().Changed("allow-insecure") {
			allowInsecure = cfg.AllowInsecure
		}

		name := cfg.LogLevel
		if cmd.Flags().Changed("log-level") {
			name = logLevel
		}
		level, err := logger.ParseLevel(name)
		if err != nil {
			return apperrors.Wrap(err, apperrors.TypeConfig, "invalid log level", "Use debug, info, warn or error.")
		}
		switch {
		case verbose:
			level = slog.LevelDebug
		case quiet && level < slog.LevelWarn:
			level = slog.LevelWarn
		}

		l := logger.New(logger.Config{
			Writer:  cmd.ErrOrStderr(),
			JSON:    LogJSON,
			NoColor: NoColor,
			Level:   level,
		})
		cmd.SetContext(logger.WithContext(cmd.Context(), l))
		return nil
	},
}

func init() {
	rootCmd.Version = BITA_VERSION
	rootCmd.SetVersionTemplate("bita version {{ .Version }}\n")

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configPath, "config", "", "path to configuration file (default ./bita.yaml or ~/.bita/bita.yaml)")
	pf.StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	pf.BoolVar(&LogJSON, "json", false, "emit logs as JSON")
	pf.BoolVar(&NoColor, "no-color", false, "disable coloured log output")
	pf.BoolVarP(&quiet, "quiet", "q", false, "hide progress bars and informational logs")
	pf.BoolVarP(&verbose, "verbose", "v", false, "log every chunk (debug level)")
	pf.BoolVar(&allowInsecure, "allow-insecure", false, "allow plaintext transports such as ftp://")
}

// Execute runs the CLI. SIGINT and SIGTERM cancel the command context.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}
