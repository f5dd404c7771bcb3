package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/absmach/flcoord"
	"github.com/absmach/flcoord/cli"
	"github.com/absmach/flcoord/pkg/sdk"
	"github.com/spf13/cobra"
)

const defConfigPath = "config.toml"

func main() {
	var (
		configPath     string
		coordinatorURL string
		token          string
	)

	rootCmd := &cobra.Command{
		Use:   "flcoord-cli",
		Short: "Federated learning coordinator CLI",
		Long:  `flcoord-cli is a command line interface for the federated learning coordinator.`,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			sdkConf := sdk.Config{
				CoordinatorURL:  cli.DefCoordinatorURL,
				TLSVerification: cli.DefTLSVerification,
			}
			if cfg, err := flcoord.LoadConfig(configPath); err == nil {
				if cfg.Coordinator.URL != "" {
					sdkConf.CoordinatorURL = cfg.Coordinator.URL
				}
				sdkConf.Token = cfg.Coordinator.Token
				sdkConf.TLSVerification = cfg.Coordinator.TLSVerification
			} else if cmd.Flags().Changed("config") {
				log.Fatal(err)
			}
			if coordinatorURL != "" {
				sdkConf.CoordinatorURL = coordinatorURL
			}
			if token != "" {
				sdkConf.Token = token
			}
			cli.SetSDK(sdk.NewSDK(sdkConf))
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", defConfigPath, "TOML config file")
	rootCmd.PersistentFlags().StringVarP(&coordinatorURL, "url", "u", "", "coordinator URL")
	rootCmd.PersistentFlags().StringVarP(&token, "token", "t", os.Getenv("FL_API_TOKEN"), "API token")

	rootCmd.AddCommand(
		cli.NewSessionsCmd(),
		cli.NewClientsCmd(),
		cli.NewUpdatesCmd(),
		cli.NewRecordsCmd(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		log.Fatal(err)
	}
}
