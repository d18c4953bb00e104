package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/shieldterminal/edgecore/internal/daemon"
)

func init() {
	alignCmd.Flags().Int64Var(&alignRingNumber, "ring", 0, "Ring number to align (required)")
	alignCmd.Flags().StringVar(&alignStart, "start", "", "Window start, RFC3339 (required)")
	alignCmd.Flags().StringVar(&alignEnd, "end", "", "Window end, RFC3339 (required)")
	_ = alignCmd.MarkFlagRequired("ring")
	_ = alignCmd.MarkFlagRequired("start")
	_ = alignCmd.MarkFlagRequired("end")
	rootCmd.AddCommand(alignCmd)
}

var (
	alignRingNumber int64
	alignStart      string
	alignEnd        string
)

var alignCmd = &cobra.Command{
	Use:   "align",
	Short: "Aggregate raw telemetry for one ring window into a ring summary",
	RunE:  runAlign,
}

func runAlign(cmd *cobra.Command, args []string) error {
	start, err := time.Parse(time.RFC3339, alignStart)
	if err != nil {
		return fmt.Errorf("parse start: %w", err)
	}
	end, err := time.Parse(time.RFC3339, alignEnd)
	if err != nil {
		return fmt.Errorf("parse end: %w", err)
	}

	d, err := daemon.New()
	if err != nil {
		return err
	}
	defer d.Close()

	ring, err := d.Aligner.AlignRing(context.Background(), alignRingNumber, start, end)
	if err != nil {
		return err
	}
	return json.NewEncoder(os.Stdout).Encode(ring)
}
