package cli

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/harun/roundtable/pkg/provider"
	"github.com/spf13/cobra"
)

var providersCmd = &cobra.Command{
	Use:   "providers",
	Short: "List supported model providers",
	Long:  `List the supported model providers, their models and whether a key is configured.`,
	RunE:  runProviders,
}

func init() {
	rootCmd.AddCommand(providersCmd)
}

func runProviders(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "KEY\tNAME\tKEY SET\tMODELS")
	fmt.Fprintln(w, "---\t----\t-------\t------")
	for _, entry := range provider.NewFactory().Entries() {
		models := make([]string, 0, len(entry.Models))
		for _, m := range entry.Models {
			models = append(models, m.ID)
		}
		configured := "no"
		if cfg.APIKeyFor(entry.Key) != "" {
			configured = "yes"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", entry.Key, entry.Name, configured, strings.Join(models, ", "))
	}
	return w.Flush()
}
