package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/harun/roundtable/pkg/agent"
	"github.com/spf13/cobra"
)

var personasCmd = &cobra.Command{
	Use:   "personas",
	Short: "List configured personas",
	Long:  `List the personas available to discussions in speaking-order priority.`,
	RunE:  runPersonas,
}

func init() {
	rootCmd.AddCommand(personasCmd)
}

func runPersonas(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "KEY\tNAME\tROLE\tSPECIALTY")
	fmt.Fprintln(w, "---\t----\t----\t---------")
	for _, p := range agent.NewRegistry(cfg.Personas).All() {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", p.Key, p.Name, p.Role, p.Specialty)
	}
	return w.Flush()
}
