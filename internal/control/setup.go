package control

import (
	"fmt"

	"whispercli/internal/config"
	"whispercli/internal/logging"

	"github.com/spf13/cobra"
)

// NewSetupCmd downloads the configured model if missing.
func NewSetupCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "setup",
		Short: "Download the configured whisper model if missing",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			logger, err := logging.Configure(cfg, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			cache := modelCache(cfg)
			cache.Log = logger
			if path, ok := cache.Cached(cfg.ASR.Model); ok {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "model already present at", path)
				return nil
			}
			path, err := cache.Resolve(cmd.Context(), cfg.ASR.Model)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "model ready at", path)
			return nil
		},
	}
}
