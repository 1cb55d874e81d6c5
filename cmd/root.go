package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/StinkyLord/dynatrace-topology-builder/internal/logging"
)

const toolVersion = "1.0.0"

var (
	flagConfig  string
	flagVerbose bool
)

var rootCmd = &cobra.Command{
	Use:   "dynatrace-topology-builder",
	Short: "Dynatrace topology export and normalization",
	Long: `dynatrace-topology-builder retrieves hosts, processes and process groups
from Dynatrace environments and converts them into a canonical topology
document of components and typed relationships.

Commands:
  • fetch     — page through the v1 and/or v2 entity APIs of every configured
                environment and write the raw responses (optionally the
                topology documents too, to disk and/or Kafka)
  • topology  — convert a raw v1 or v2 dump file into a topology document

Configuration comes from an optional YAML file (--config), a .env file in the
working directory and environment variables such as PA_BASE_URL,
PA_API_TOKEN or PA_AUTH_CLIENT_ID/PA_AUTH_CLIENT_SECRET/PA_AUTH_URL.`,
	Version:           toolVersion,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setupLogger,
	PersistentPostRun: func(cmd *cobra.Command, _ []string) {
		_ = logging.FromContext(cmd.Context()).Sync()
	},
}

func init() {
	addRootFlags()

	rootCmd.AddCommand(fetchCmd)
	rootCmd.AddCommand(topologyCmd)
}

func addRootFlags() {
	rootCmd.PersistentFlags().StringVarP(&flagConfig, "config", "c", "", "Path to a YAML configuration file")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "Enable debug logging")
}

// Execute runs the root command. Ctrl-C cancels in-flight requests.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// setupLogger attaches a logger tagged with a fresh run id to the command
// context.
func setupLogger(cmd *cobra.Command, _ []string) error {
	logger, err := logging.New(flagVerbose)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	logger = logger.With(zap.String("run_id", uuid.NewString()), zap.String("command", cmd.Name()))
	cmd.SetContext(logging.ToContext(cmd.Context(), logger))
	return nil
}
