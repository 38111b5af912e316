package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/davidahmann/partnergate/internal/contracts"
	"github.com/davidahmann/partnergate/internal/ledger"
	"github.com/davidahmann/partnergate/internal/ledger/sqlstore"
	"github.com/davidahmann/partnergate/internal/reference"
	"github.com/davidahmann/partnergate/internal/validation"
)

func newValidateCmd(v *viper.Viper) *cobra.Command {
	var (
		contractPath string
		dataPath     string
		referenceDB  string
		mode         string
		timeout      time.Duration
	)
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a dataset offline against a contract file",
		Long: `Validate runs the schema, continuity and contradiction checks locally and
prints the scored result. Contradictions are checked against the time_series
table of --reference-db when given; without it the check is inconclusive and,
unless --unavailable-mode says otherwise, does not fail the run.

Example:
  partnergate validate --contract contracts/fx_rates.yaml --data january.json
  partnergate validate --contract contracts/fx_rates.yaml --data january.json --reference-db file:ledger.db`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			loaded, err := contracts.LoadContract(contractPath)
			if err != nil {
				return err
			}
			// #nosec G304 -- operator-supplied input file.
			raw, err := os.ReadFile(dataPath)
			if err != nil {
				return err
			}
			data, err := validation.DecodeSubmissionData(raw)
			if err != nil {
				return err
			}

			var ref reference.Store
			if referenceDB != "" {
				store, err := sqlstore.OpenSQLite(referenceDB)
				if err != nil {
					return fmt.Errorf("open reference db: %w", err)
				}
				defer store.Close()
				if err := ledger.Migrate(store.DB(), ledger.DBSQLite); err != nil {
					return err
				}
				ref = reference.NewLedgerStore(store)
			}

			if mode == "" {
				mode = v.GetString("reference.unavailable_mode")
			}
			if mode == "" && ref == nil {
				mode = string(validation.UnavailableFailOpen)
			}
			parsed, err := validation.ParseUnavailableMode(mode)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			pipeline := validation.NewPipeline(ref, validation.Options{UnavailableMode: parsed}, nil)
			result, err := pipeline.Validate(ctx, data, loaded.Contract)
			if err != nil {
				return err
			}

			out, err := json.Marshal(result)
			if err != nil {
				return err
			}
			if err := printJSON(cmd.OutOrStdout(), out); err != nil {
				return err
			}
			if !result.Overall.Passed {
				return fmt.Errorf("validation failed (score %d)", result.Overall.Score)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&contractPath, "contract", "", "contract YAML file")
	cmd.Flags().StringVar(&dataPath, "data", "", "submission data JSON file ({\"records\": [...], \"metadata\": {...}})")
	cmd.Flags().StringVar(&referenceDB, "reference-db", "", "SQLite DSN holding reference time_series")
	cmd.Flags().StringVar(&mode, "unavailable-mode", "", "fail_closed, fail_open or abort")
	cmd.Flags().DurationVar(&timeout, "timeout", time.Minute, "overall validation timeout")
	_ = cmd.MarkFlagRequired("contract")
	_ = cmd.MarkFlagRequired("data")
	return cmd
}
