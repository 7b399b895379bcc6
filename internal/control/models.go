package control

import (
	"fmt"
	"io"
	"time"

	"whispercli/internal/config"
	"whispercli/internal/fault"
	"whispercli/internal/logging"
	"whispercli/internal/models"

	"github.com/spf13/cobra"
)

// NewModelsCmd wires up the models subcommands (list/download/set).
func NewModelsCmd(cfgPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "models",
		Short: "List/download/set whisper models",
	}
	cmd.AddCommand(newModelsListCmd(cfgPath))
	cmd.AddCommand(newModelsDownloadCmd(cfgPath))
	cmd.AddCommand(newModelsSetCmd(cfgPath))
	return cmd
}

func modelCache(cfg *config.Config) *models.Cache {
	return &models.Cache{
		Dir:     cfg.Models.Dir,
		BaseURL: cfg.Models.BaseURL,
		Timeout: time.Duration(cfg.Models.DownloadTimeoutSec) * time.Second,
	}
}

func newModelsListCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List known models and those present locally",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			printModels(cmd.OutOrStdout(), modelCache(cfg), cfg.ASR.Model)
			return nil
		},
	}
}

func printModels(w io.Writer, cache *models.Cache, current string) {
	for _, m := range models.Known() {
		avail := ""
		if _, ok := cache.Cached(m.ID); ok {
			avail = " (downloaded)"
		}
		if m.ID == current {
			avail += " (configured)"
		}
		_, _ = fmt.Fprintf(w, "- %-20s %5d MB%s\n", m.ID, m.SizeMB, avail)
	}
}

func newModelsDownloadCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "download <model>",
		Short: "Download a model from the registry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			logger, err := logging.Configure(cfg, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			if _, ok := models.Lookup(args[0]); !ok {
				return fmt.Errorf("%w: unknown model %q; run models list", fault.ErrConfiguration, args[0])
			}
			cache := modelCache(cfg)
			cache.Log = logger
			path, err := cache.Download(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
}

func newModelsSetCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "set <model-id-or-path>",
		Short: "Set asr.model in config",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			cfg.ASR.Model = args[0]
			if err := config.Save(cfg, cfg.Paths.ConfigPath); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "model set to %s\n", args[0])
			return nil
		},
	}
}
