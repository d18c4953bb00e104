package cli

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/shieldterminal/edgecore/internal/daemon"
)

func init() {
	predictCmd.Flags().Int64Var(&predictRingNumber, "ring", 0, "Ring number to predict for (required)")
	predictCmd.Flags().StringVar(&predictModelOverride, "model", "", "Explicit model name:version override")
	_ = predictCmd.MarkFlagRequired("ring")
	rootCmd.AddCommand(predictCmd)
}

var (
	predictRingNumber    int64
	predictModelOverride string
)

var predictCmd = &cobra.Command{
	Use:   "predict",
	Short: "Run inference for one already-aligned ring",
	RunE:  runPredict,
}

func runPredict(cmd *cobra.Command, args []string) error {
	d, err := daemon.New()
	if err != nil {
		return err
	}
	defer d.Close()

	pred, err := d.Predictor.Predict(predictRingNumber, predictModelOverride)
	if err != nil {
		return err
	}
	return json.NewEncoder(os.Stdout).Encode(pred)
}
