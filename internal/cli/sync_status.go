package cli

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/shieldterminal/edgecore/internal/daemon"
)

func init() {
	rootCmd.AddCommand(syncStatusCmd)
}

var syncStatusCmd = &cobra.Command{
	Use:   "sync-status",
	Short: "Print the sync core's current buffer, network, and disk state",
	RunE:  runSyncStatus,
}

func runSyncStatus(cmd *cobra.Command, args []string) error {
	d, err := daemon.New()
	if err != nil {
		return err
	}
	defer d.Close()

	stats, err := d.SyncManager.GetStatistics()
	if err != nil {
		return err
	}
	return json.NewEncoder(os.Stdout).Encode(stats)
}
