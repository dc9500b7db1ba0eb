package cmd

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/jsonguard/internal/engine"
	"github.com/xkilldash9x/jsonguard/internal/observability"
	"github.com/xkilldash9x/jsonguard/internal/reporting"
	"github.com/xkilldash9x/jsonguard/internal/worker"
)

// newCheckCmd creates and configures the `check` command.
func newCheckCmd(v *viper.Viper) *cobra.Command {
	checkCmd := &cobra.Command{
		Use:   "check [paths...]",
		Short: "Analyzes JavaScript files and directories for unguarded reads of parsed JSON",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}

			files, err := engine.CollectFiles(args, cfg.Engine)
			if err != nil {
				return err
			}
			if len(files) == 0 {
				logger.Warn("No JavaScript files found", zap.Strings("paths", args))
			}

			w, err := worker.NewMonolithicWorker(cfg.Analysis, logger)
			if err != nil {
				return fmt.Errorf("failed to create worker: %w", err)
			}

			format, _ := cmd.Flags().GetString("format")
			if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
				format = reporting.FormatJSON
			}
			outputPath, _ := cmd.Flags().GetString("output")
			reporter, err := reporting.New(format, outputPath, cmd.OutOrStdout())
			if err != nil {
				return err
			}

			runID := uuid.NewString()
			// A cancelled run still reports the files that finished.
			report, runErr := engine.New(cfg.Engine, logger, w).Run(ctx, runID, files)
			writeErr := reporter.Write(report)
			if err := errors.Join(writeErr, reporter.Close()); err != nil {
				return fmt.Errorf("failed to write results: %w", err)
			}
			if runErr != nil {
				return runErr
			}

			if failed := report.Failed(); len(failed) > 0 {
				return fmt.Errorf("%d of %d file(s) could not be analyzed", len(failed), len(report.Files))
			}
			if failOnFindings, _ := cmd.Flags().GetBool("fail-on-findings"); failOnFindings && len(report.Findings()) > 0 {
				return ErrFindingsReported
			}
			return nil
		},
	}

	checkCmd.Flags().IntP("concurrency", "j", 0, "number of files analyzed in parallel (default from engine.concurrency)")
	checkCmd.Flags().Duration("timeout", 0, "per-file analysis timeout (default from engine.file_timeout)")
	checkCmd.Flags().Int("max-iterations", 0, "solver worklist bound per function; 0 derives it from the CFG size")
	checkCmd.Flags().Bool("deref-facts", true, "treat an unconditional property read as proof the base is non-null")
	checkCmd.Flags().StringP("format", "f", reporting.FormatText, "output format: text or json")
	checkCmd.Flags().Bool("json", false, "shorthand for --format json")
	checkCmd.Flags().StringP("output", "o", "", "write results to a file instead of stdout")
	checkCmd.Flags().Bool("fail-on-findings", false, "exit with status 2 when any finding is reported")

	// The root's PersistentPreRunE decodes the config, so bind here rather
	// than in PreRunE. Unchanged flags fall through to file, env and defaults.
	for key, flag := range map[string]string{
		"engine.concurrency":         "concurrency",
		"engine.file_timeout":        "timeout",
		"analysis.max_iterations":    "max-iterations",
		"analysis.dereference_facts": "deref-facts",
	} {
		_ = v.BindPFlag(key, checkCmd.Flags().Lookup(flag))
	}
	return checkCmd
}
