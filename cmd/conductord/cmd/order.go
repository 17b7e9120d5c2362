package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/GoCodeAlone/conductor"
)

// NewOrderCommand creates the command that prints the start order of a
// manifest without starting anything.
func NewOrderCommand() *cobra.Command {
	var manifestPath string

	cmd := &cobra.Command{
		Use:   "order",
		Short: "Print the dependency-resolved start order of a manifest",
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := LoadManifest(manifestPath)
			if err != nil {
				return err
			}
			order, err := conductor.Resolve(m.Descriptors(nil))
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), strings.Join(order, " -> "))
			return err
		},
	}

	cmd.Flags().StringVarP(&manifestPath, "manifest", "m", "", "Path to the YAML or TOML manifest")
	_ = cmd.MarkFlagRequired("manifest")

	return cmd
}
