package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/shieldterminal/edgecore/internal/daemon"
)

func init() {
	rollbackModelCmd.Flags().StringVar(&rollbackPreviousVersion, "previous-version", "", "Version to reactivate (required)")
	_ = rollbackModelCmd.MarkFlagRequired("previous-version")
	rootCmd.AddCommand(rollbackModelCmd)
}

var rollbackPreviousVersion string

var rollbackModelCmd = &cobra.Command{
	Use:   "rollback-model [name]",
	Short: "Retire the active model and reactivate a previous version",
	Args:  cobra.ExactArgs(1),
	RunE:  runRollbackModel,
}

func runRollbackModel(cmd *cobra.Command, args []string) error {
	d, err := daemon.New()
	if err != nil {
		return err
	}
	defer d.Close()

	if err := d.Predictor.RollbackModel(args[0], rollbackPreviousVersion); err != nil {
		return err
	}
	fmt.Printf("rolled back %s to %s\n", args[0], rollbackPreviousVersion)
	return nil
}
