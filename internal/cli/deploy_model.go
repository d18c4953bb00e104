package cli

import (
	"encoding/json"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/shieldterminal/edgecore/internal/daemon"
	"github.com/shieldterminal/edgecore/internal/infra/registry"
)

func init() {
	deployModelCmd.Flags().StringVar(&deploySrcPath, "src", "", "Path to the model artifact (required)")
	deployModelCmd.Flags().StringVar(&deployName, "name", "", "Model name (required)")
	deployModelCmd.Flags().StringVar(&deployVersion, "version", "", "Model version (required)")
	deployModelCmd.Flags().StringVar(&deployModelType, "type", "", "Model type")
	deployModelCmd.Flags().StringVar(&deployZone, "zone", "all", "Geological zone this model serves")
	deployModelCmd.Flags().StringVar(&deployFeatures, "features", "", "Comma-separated feature list")
	deployModelCmd.Flags().BoolVar(&deployActivate, "activate", false, "Activate immediately after staging")
	deployModelCmd.Flags().StringVar(&deployOutputFormat, "output-format", "", "Output tensor decode format version")
	deployModelCmd.Flags().Float64Var(&deployR2, "r2", 0, "Validation R-squared")
	deployModelCmd.Flags().Float64Var(&deployRMSE, "rmse", 0, "Validation RMSE")
	deployModelCmd.Flags().Float64Var(&deployMAE, "mae", 0, "Validation MAE")
	_ = deployModelCmd.MarkFlagRequired("src")
	_ = deployModelCmd.MarkFlagRequired("name")
	_ = deployModelCmd.MarkFlagRequired("version")
	rootCmd.AddCommand(deployModelCmd)
}

var (
	deploySrcPath      string
	deployName         string
	deployVersion      string
	deployModelType    string
	deployZone         string
	deployFeatures     string
	deployActivate     bool
	deployOutputFormat string
	deployR2           float64
	deployRMSE         float64
	deployMAE          float64
)

var deployModelCmd = &cobra.Command{
	Use:   "deploy-model",
	Short: "Stage (and optionally activate) a model artifact",
	RunE:  runDeployModel,
}

func runDeployModel(cmd *cobra.Command, args []string) error {
	d, err := daemon.New()
	if err != nil {
		return err
	}
	defer d.Close()

	var featureList []string
	if deployFeatures != "" {
		featureList = strings.Split(deployFeatures, ",")
	}

	metrics := registry.ValidationMetrics{}
	if cmd.Flags().Changed("r2") {
		metrics.R2 = &deployR2
	}
	if cmd.Flags().Changed("rmse") {
		metrics.RMSE = &deployRMSE
	}
	if cmd.Flags().Changed("mae") {
		metrics.MAE = &deployMAE
	}

	meta, err := d.Predictor.DeployModel(deploySrcPath, deployName, deployVersion, deployModelType, deployZone, metrics, featureList, deployActivate, deployOutputFormat)
	if err != nil {
		return err
	}
	return json.NewEncoder(os.Stdout).Encode(meta)
}
