package cli

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/harun/roundtable/pkg/store"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	usageFrom string
	usageTo   string
	usageJSON bool
)

var usageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Report token usage and estimated cost",
	Long: `Report token usage and estimated cost recorded by the server,
grouped by provider and model. Dates are YYYY-MM-DD.`,
	RunE: runUsage,
}

func init() {
	usageCmd.Flags().StringVar(&usageFrom, "from", "", "start date (inclusive)")
	usageCmd.Flags().StringVar(&usageTo, "to", "", "end date (exclusive)")
	usageCmd.Flags().BoolVar(&usageJSON, "json", false, "print the report as JSON")
	rootCmd.AddCommand(usageCmd)
}

func parseDate(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.DateOnly, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, want YYYY-MM-DD", value)
	}
	return t, nil
}

func runUsage(cmd *cobra.Command, args []string) error {
	from, err := parseDate(usageFrom)
	if err != nil {
		return err
	}
	to, err := parseDate(usageTo)
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	st, err := store.Open(store.Config{Path: cfg.Storage.Path, Logger: zerolog.Nop()})
	if err != nil {
		return err
	}
	defer st.Close()

	summary, err := st.UsageSummary(cmd.Context(), from, to)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if usageJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(summary)
	}

	fmt.Fprintf(out, "Sessions: %d\n", summary.TotalSessions)
	fmt.Fprintf(out, "Tokens: %d in / %d out\n", summary.TotalInputTokens, summary.TotalOutputTokens)
	fmt.Fprintf(out, "Estimated cost: $%.4f\n\n", summary.TotalCost)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PROVIDER\tMODEL\tSESSIONS\tINPUT\tOUTPUT\tCOST")
	fmt.Fprintln(w, "--------\t-----\t--------\t-----\t------\t----")
	for _, p := range summary.ByProvider {
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t$%.4f\n", p.Provider, p.Model, p.Sessions, p.InputTokens, p.OutputTokens, p.Cost)
	}
	return w.Flush()
}
