package cli

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/shieldterminal/edgecore/internal/daemon"
)

func init() {
	recordActualCmd.Flags().Int64Var(&recordActualRing, "ring", 0, "Ring number the observed settlement belongs to (required)")
	recordActualCmd.Flags().Float64Var(&recordActualSettlement, "settlement", 0, "Observed settlement value (required)")
	recordActualCmd.Flags().Float64Var(&recordActualDisplacement, "displacement", 0, "Observed displacement value")
	recordActualCmd.Flags().Float64Var(&recordActualGroundwater, "groundwater", 0, "Observed groundwater change value")
	_ = recordActualCmd.MarkFlagRequired("ring")
	_ = recordActualCmd.MarkFlagRequired("settlement")
	rootCmd.AddCommand(recordActualCmd)
}

var (
	recordActualRing         int64
	recordActualSettlement   float64
	recordActualDisplacement float64
	recordActualGroundwater  float64
)

var recordActualCmd = &cobra.Command{
	Use:   "record-actual",
	Short: "Back-fill an observed settlement onto the most recent prediction for a ring",
	RunE:  runRecordActual,
}

func runRecordActual(cmd *cobra.Command, args []string) error {
	d, err := daemon.New()
	if err != nil {
		return err
	}
	defer d.Close()

	var displacement, groundwater *float64
	if cmd.Flags().Changed("displacement") {
		displacement = &recordActualDisplacement
	}
	if cmd.Flags().Changed("groundwater") {
		groundwater = &recordActualGroundwater
	}

	if err := d.Predictor.RecordActual(recordActualRing, recordActualSettlement, displacement, groundwater); err != nil {
		return err
	}
	return json.NewEncoder(os.Stdout).Encode(map[string]string{"status": "recorded"})
}
