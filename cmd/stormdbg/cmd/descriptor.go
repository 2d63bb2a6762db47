package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	descriptorKind string
	descriptorJSON bool
)

var descriptorCmd = &cobra.Command{
	Use:   "descriptor [key=value...]",
	Short: "Print the session label for connection parameters",
	Long: `Print the label a session shows for the given connection parameters,
after merging them over backend.params from the configuration. Missing
parameters are shown as "?".`,
	Example: `  stormdbg descriptor --kind jdb host=localhost port=5005
  stormdbg descriptor --kind delve pid=4242 --json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		kind, err := resolveKind(descriptorKind, cfg, nil)
		if err != nil {
			return err
		}
		backend, err := newBackend(kind, cfg)
		if err != nil {
			return err
		}
		params, err := parseParams(cfg.Backend.Params, args)
		if err != nil {
			return err
		}

		d := backend.Descriptor(params)
		if descriptorJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(d)
		}
		fmt.Fprintln(cmd.OutOrStdout(), d)
		return nil
	},
}

func init() {
	descriptorCmd.Flags().StringVar(&descriptorKind, "kind", "", kindUsage())
	descriptorCmd.Flags().BoolVar(&descriptorJSON, "json", false, "print as JSON")
}
