package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/billscan/internal/report"
)

var (
	processFiles  []string
	processFilter string
	processFormat string
	processXLSX   string
)

var processCmd = &cobra.Command{
	Use:   "process",
	Short: "Extract and aggregate a set of documents in one shot",
	Long:  "Runs the full pipeline over the given files without a long-lived session: per-page extraction for every file, then a single aggregation, printed to stdout.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(processFiles) == 0 {
			return eris.New("at least one --file is required")
		}

		ctx := cmd.Context()
		env, err := initOneShotEnv()
		if err != nil {
			return err
		}
		defer env.Close()

		final, err := env.Pipeline.ProcessOnce(ctx, processFiles, processFilter)
		if err != nil {
			return err
		}

		if processXLSX != "" {
			if err := report.WriteXLSX(final, processXLSX); err != nil {
				return err
			}
			zap.L().Info("report written", zap.String("path", processXLSX))
		}

		switch processFormat {
		case "yaml":
			enc := yaml.NewEncoder(os.Stdout)
			enc.SetIndent(2)
			defer enc.Close()
			return eris.Wrap(enc.Encode(final), "process: encode yaml")
		case "json", "":
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return eris.Wrap(enc.Encode(final), "process: encode json")
		default:
			return eris.Errorf("unknown format %q (want json or yaml)", processFormat)
		}
	},
}

func init() {
	processCmd.Flags().StringArrayVar(&processFiles, "file", nil, "document to process (repeatable)")
	processCmd.Flags().StringVar(&processFilter, "entity-filter", "", "restrict the report to customers matching this name or identifier")
	processCmd.Flags().StringVar(&processFormat, "format", "json", "stdout format: json or yaml")
	processCmd.Flags().StringVar(&processXLSX, "xlsx", "", "also write the report to this .xlsx path")
	rootCmd.AddCommand(processCmd)
}
