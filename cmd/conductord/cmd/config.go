package cmd

import (
	"github.com/spf13/cobra"

	"github.com/GoCodeAlone/conductor/config"
)

// NewConfigCommand creates the config command group.
func NewConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manifest helpers",
	}
	cmd.AddCommand(newSampleCommand())
	return cmd
}

func newSampleCommand() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "sample",
		Short: "Print a sample manifest with every default filled in",
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := config.Sample(SampleManifest(), format)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "yaml", "Output format (yaml or toml)")
	return cmd
}

// SampleManifest returns a small manifest of three components.
func SampleManifest() *Manifest {
	return &Manifest{
		Components: []ComponentSpec{
			{ID: "storage", Priority: 10, Share: "storage.ready"},
			{ID: "cache", Dependencies: []string{"storage"}, Channels: map[string]string{"invalidate": "flush"}},
			{ID: "api", Dependencies: []string{"storage", "cache"}, Publish: "invalidate"},
		},
	}
}
