package cli

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/shieldterminal/edgecore/internal/daemon"
)

func init() {
	evaluateCmd.Flags().StringVar(&evaluateModelName, "model", "", "Model name to evaluate (required)")
	_ = evaluateCmd.MarkFlagRequired("model")
	rootCmd.AddCommand(evaluateCmd)
}

var evaluateModelName string

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Run a rolling-window performance evaluation for a model",
	RunE:  runEvaluate,
}

func runEvaluate(cmd *cobra.Command, args []string) error {
	d, err := daemon.New()
	if err != nil {
		return err
	}
	defer d.Close()

	metric, err := d.Monitor.EvaluateRolling(evaluateModelName)
	if err != nil {
		return err
	}
	if metric == nil {
		os.Stdout.WriteString("not enough samples to evaluate yet\n")
		return nil
	}
	return json.NewEncoder(os.Stdout).Encode(metric)
}
