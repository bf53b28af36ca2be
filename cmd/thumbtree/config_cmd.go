package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config [SOURCE_DIR DEST_DIR]",
		Short: "Print the effective configuration as YAML",
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) != 0 && len(args) != 2 {
				return fmt.Errorf("accepts 0 or 2 arg(s), received %d", len(args))
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, args)
			if err != nil {
				return err
			}

			out, err := cfg.YAML()
			if err != nil {
				return err
			}
			if cfg.Path != "" {
				fmt.Fprintln(cmd.OutOrStdout(), gray.Render("# "+cfg.Path))
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
}
