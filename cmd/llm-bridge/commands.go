package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/upb/llm-bridge/app"
	"github.com/upb/llm-bridge/models"
	"github.com/upb/llm-bridge/services/classifier"
	"github.com/upb/llm-bridge/services/routing"
)

func newClassifyCmd(flags *globalFlags) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "classify [prompt]",
		Short: "Print the scenario a prompt is routed to",
		Long:  "Classify a prompt given as arguments, or read from stdin when no argument is given.",
		RunE: func(cmd *cobra.Command, args []string) error {
			prompt := strings.Join(args, " ")
			if len(args) == 0 {
				data, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("failed to read prompt: %w", err)
				}
				prompt = string(data)
			}
			if strings.TrimSpace(prompt) == "" {
				return fmt.Errorf("empty prompt")
			}

			cfg, err := loadConfig(cmd.Context(), flags)
			if err != nil {
				return err
			}

			msgs := []models.ChatMessage{{Role: models.RoleUser, Content: prompt}}
			result := classifier.Classify(msgs, classifier.Options{
				LongContextThreshold: cfg.Routing.LongContextThreshold,
			})

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(result)
			}
			fmt.Fprintf(out, "scenario: %s\n", result.Scenario)
			fmt.Fprintf(out, "reason:   %s\n", result.Reason)
			fmt.Fprintf(out, "tokens:   %d\n", result.Tokens)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the full result as JSON")
	return cmd
}

func newRoutesCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "routes",
		Short: "Print the effective routing table",
		Long:  "Load the routing file and environment overrides, validate them and print the resulting table.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd.Context(), flags)
			if err != nil {
				return err
			}

			table, err := routing.Load(app.LoadOptions(cfg), zap.NewNop())
			if err != nil {
				return err
			}
			return printTable(cmd.OutOrStdout(), table)
		},
	}
}

func printTable(out io.Writer, table *routing.Table) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)

	fmt.Fprintln(tw, "MODEL\tMODEL ID\tBACKEND\tPROVIDER")
	for _, spec := range table.ModelSpecs() {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", spec.Name, spec.ModelID, spec.Kind(), spec.Provider.Name)
	}
	fmt.Fprintln(tw)

	fmt.Fprintln(tw, "SCENARIO\tPRIMARY\tFALLBACKS")
	for _, sc := range models.Scenarios {
		entry := table.Entries[sc]
		fmt.Fprintf(tw, "%s\t%s\t%s\n", sc, entry.Primary, strings.Join(entry.Fallbacks, ", "))
	}
	fmt.Fprintln(tw)

	fmt.Fprintf(tw, "long context threshold:\t%d\n", table.LongContextThreshold)
	fmt.Fprintf(tw, "max fallback attempts:\t%d\n", table.MaxFallbackAttempts)
	return tw.Flush()
}
