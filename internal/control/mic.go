package control

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"whispercli/internal/audio"
	"whispercli/internal/config"

	"github.com/spf13/cobra"
)

// NewMicCmd groups mic subcommands.
func NewMicCmd(cfgPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "mic",
		Aliases: []string{"microphone", "mics"},
		Short:   "Microphone management",
	}
	cmd.AddCommand(newMicListCmd(cfgPath))
	cmd.AddCommand(newMicSetCmd(cfgPath))
	return cmd
}

func newMicListCmd(cfgPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List capture devices with the index -i expects",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			backend, err := audio.NewBackend(cfg.Audio.Backend)
			if err != nil {
				return err
			}
			devs, err := backend.Devices(cmd.Context())
			if err != nil {
				return err
			}
			jsonOut, _ := cmd.Flags().GetBool("json")
			if jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(devs)
			}
			printDevices(cmd.OutOrStdout(), backend.Name(), devs, cfg.Audio.DeviceIndex)
			return nil
		},
	}
	cmd.Flags().Bool("json", false, "output JSON")
	return cmd
}

func printDevices(w io.Writer, backend string, devs []audio.Device, selected int) {
	if len(devs) == 0 {
		_, _ = fmt.Fprintf(w, "no %s capture devices found\n", backend)
		return
	}
	for _, d := range devs {
		mark := ""
		if d.Default {
			mark += " (default)"
		}
		if d.Index == selected {
			mark += " (selected)"
		}
		_, _ = fmt.Fprintf(w, "[%d] %s%s\n", d.Index, d.Name, mark)
	}
}

func newMicSetCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "set <index>",
		Short: "Store the default microphone index in config",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			idx, err := strconv.Atoi(args[0])
			if err != nil || idx < 0 {
				return fmt.Errorf("invalid index %q", args[0])
			}
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			cfg.Audio.DeviceIndex = idx
			if err := config.Save(cfg, cfg.Paths.ConfigPath); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "mic index set to %d in %s\n", idx, cfg.Paths.ConfigPath)
			return nil
		},
	}
}
