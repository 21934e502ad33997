package cmd

import (
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/moe-bench/moe-bench/internal/filetransfer"
	"github.com/moe-bench/moe-bench/internal/models"
)

var (
	fetchHost    string
	fetchPort    int
	fetchUser    string
	fetchKeyPath string
	fetchRemote  string
	fetchLocal   string
)

var fetchCmd = &cobra.Command{
	Use:   "fetch [model]",
	Short: "Fetch model weights from the remote weights host",
	Long: `Fetch model weights over SFTP. With a registered model name the
remote and local paths default to the registry's weights path; both can
be overridden with --remote and --local.`,
	Args: cobra.MaximumNArgs(1),
	RunE: fetchWeights,
}

func init() {
	fetchCmd.Flags().StringVar(&fetchHost, "host", "", "Weights host")
	fetchCmd.Flags().IntVar(&fetchPort, "port", 22, "SSH port")
	fetchCmd.Flags().StringVar(&fetchUser, "user", "ubuntu", "SSH user")
	fetchCmd.Flags().StringVar(&fetchKeyPath, "key", "", "Path to SSH private key")
	fetchCmd.Flags().StringVar(&fetchRemote, "remote", "", "Remote weights path")
	fetchCmd.Flags().StringVar(&fetchLocal, "local", "", "Local destination path")
	_ = fetchCmd.MarkFlagRequired("host")
	_ = fetchCmd.MarkFlagRequired("key")
	rootCmd.AddCommand(fetchCmd)
}

func fetchWeights(cmd *cobra.Command, args []string) error {
	_, logger, err := loadConfig()
	if err != nil {
		return err
	}

	remote, local := fetchRemote, fetchLocal
	if len(args) == 1 {
		model, ok := models.Default().Get(args[0])
		if !ok {
			return fmt.Errorf("unknown model %q", args[0])
		}
		if local == "" {
			local = model.WeightsPath
		}
		if remote == "" {
			remote = path.Join("/models", filepath.Base(model.WeightsPath))
		}
	}
	if remote == "" || local == "" {
		return fmt.Errorf("either a model name or both --remote and --local are required")
	}

	key, err := os.ReadFile(fetchKeyPath)
	if err != nil {
		return fmt.Errorf("failed to read private key: %w", err)
	}

	tr := filetransfer.New(filetransfer.Credentials{
		Host:       fetchHost,
		Port:       fetchPort,
		User:       fetchUser,
		PrivateKey: key,
	}, filetransfer.WithLogger(logger))

	return tr.FetchWeights(cmd.Context(), remote, local)
}
