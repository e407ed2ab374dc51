package cmd

import (
	"fmt"
	"sort"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"

	"github.com/3leaps/gopathways/pkg/manifest"
	"github.com/3leaps/gopathways/pkg/source"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a job manifest and print the plan",
	Long: `Validate a job manifest against its schema and semantic rules, then
print the sources, store and settings a run would use. Nothing is fetched
or written.

Example:
  gopathways validate --job pathways.yaml`,
	RunE: runValidate,
}

var (
	validateJobPath string
	validateSource  string
)

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringVarP(&validateJobPath, "job", "j", "", "Path to job manifest (required)")
	validateCmd.Flags().StringVar(&validateSource, "source", "", "Only show sources whose name matches this glob")
	_ = validateCmd.MarkFlagRequired("job")
}

func runValidate(cmd *cobra.Command, args []string) error {
	m, err := loadManifest(validateJobPath, validateSource)
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid manifest", err)
	}
	cfg, err := currentConfig(cmd.Context())
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid configuration", err)
	}
	sc := storeConfig(cfg, m)
	showPlan(m, storeDescription(sc.Path, sc.URL))
	return nil
}

func storeDescription(path, url string) string {
	if url != "" {
		return url
	}
	return path
}

// showPlan prints what a run of m would do.
func showPlan(m *manifest.Manifest, store string) {
	fmt.Println("=== Pathways Job Plan ===")
	fmt.Println()
	fmt.Println("Sources:")
	for _, s := range m.Sources {
		ref := s.Ref()
		switch ref.Kind {
		case source.KindFile:
			fmt.Printf("  - %s (file %s)\n", s.Name, ref.ID)
		default:
			fmt.Printf("  - %s (sheet %s)\n", s.Name, ref.ID)
		}
	}
	fmt.Println()

	fmt.Printf("Store:       %s\n", store)
	if m.Store.Table != "" {
		fmt.Printf("Table:       %s\n", m.Store.Table)
	}
	fmt.Printf("Concurrency: %d\n", m.Sheets.Concurrency)
	if m.Sheets.RateLimit != nil && *m.Sheets.RateLimit > 0 {
		fmt.Printf("Rate Limit:  %.1f req/s\n", *m.Sheets.RateLimit)
	}
	fmt.Printf("Country:     %s\n", m.Transform.Country)
	fmt.Printf("Opt-in:      %s\n", m.Transform.OptIn)
	if m.Transform.Timezone != "" {
		fmt.Printf("Timezone:    %s\n", m.Transform.Timezone)
	}
	fmt.Printf("Policy:      %s\n", m.Load.ErrorPolicy)
	fmt.Printf("Watermark:   %s\n", m.Load.WatermarkScope)
	fmt.Printf("Reconcile:   deleted=%v opted_out=%v\n", m.Reconcile.DeletedEnabled(), m.Reconcile.OptedOutEnabled())
	if len(m.Transform.HeaderOverrides) > 0 {
		labels := make([]string, 0, len(m.Transform.HeaderOverrides))
		for label := range m.Transform.HeaderOverrides {
			labels = append(labels, label)
		}
		sort.Strings(labels)
		fmt.Println("Header overrides:")
		for _, label := range labels {
			fmt.Printf("  %q -> %s\n", label, m.Transform.HeaderOverrides[label])
		}
	}
	if m.Export.Destination != "" {
		fmt.Printf("Export:      %s\n", m.Export.Destination)
	}
	fmt.Printf("Output:      %s\n", m.Output.Destination)
	fmt.Println()
	fmt.Println("Manifest validated successfully.")
}
