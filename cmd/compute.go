package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/username/ledgerdesk/backend/src/logger"
	"github.com/username/ledgerdesk/backend/src/processors"
	"github.com/username/ledgerdesk/backend/src/services"
	"github.com/username/ledgerdesk/backend/src/utils"
)

var computeCmd = &cobra.Command{
	Use:   "compute [document.json]",
	Short: "Compute line and document totals for a document",
	Long: `Compute line and document totals offline. The document has the same shape as the
body of POST /api/documents/compute. It is read from the given file, or stdin when omitted.`,
	Example: `  ledgerdesk compute invoice.json --home-state MH
  cat quote.json | ledgerdesk compute --home-state 27 --missing-place-of-supply inter_state`,
	Args: cobra.MaximumNArgs(1),
	RunE: runCompute,
}

func init() {
	rootCmd.AddCommand(computeCmd)
	computeCmd.Flags().String("home-state", os.Getenv("ISSUER_HOME_STATE"), "GST state of the issuing entity")
	computeCmd.Flags().String("currency", "INR", "Currency when the document names none")
	computeCmd.Flags().String("missing-place-of-supply", "intra_state", "Regime for customers without a place of supply (intra_state|inter_state)")
}

func runCompute(cmd *cobra.Command, args []string) error {
	logger.InitLogger("error")

	homeStateRaw, _ := cmd.Flags().GetString("home-state")
	currency, _ := cmd.Flags().GetString("currency")
	policyRaw, _ := cmd.Flags().GetString("missing-place-of-supply")

	homeState := utils.NormalizeStateCode(homeStateRaw)
	if homeState == "" {
		return fmt.Errorf("--home-state %q is not a known GST state", homeStateRaw)
	}
	policy, err := processors.ParseMissingPlaceOfSupplyPolicy(policyRaw)
	if err != nil {
		return err
	}

	var in io.Reader = cmd.InOrStdin()
	if len(args) == 1 {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("failed to open document: %w", err)
		}
		defer f.Close()
		in = f
	}

	var req services.ComputeRequest
	dec := json.NewDecoder(in)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		return fmt.Errorf("failed to decode document: %w", err)
	}

	svc := services.NewTransactionService(nil, nil, processors.NewTaxRegimeClassifier(policy), nil, homeState, currency)
	view, err := svc.Compute(req)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(view)
}
