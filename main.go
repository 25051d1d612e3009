package main

import (
	"context"
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/ilievs/panelagent/config"
	"github.com/ilievs/panelagent/system"
)

// Version information set via ldflags at build time
var (
	version = "dev"
	commit  = "none"
)

var (
	configFlag    string
	initForceFlag bool
	statusAddress string
)

var rootCmd = &cobra.Command{
	Use:           "panelagent",
	Short:         "Device integrations for a wall panel dashboard",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the agent until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := system.SignalContext(cmd.Context())
		defer stop()
		return RunApplication(ctx, configFlag)
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default config file",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.WriteDefault(configFlag, initForceFlag); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", configFlag)
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the status and command log of a running agent",
	RunE: func(cmd *cobra.Command, args []string) error {
		address := statusAddress
		if address == "" {
			address = config.DefaultConfig().HTTP.Address
			if cfg, err := config.Load(configFlag); err == nil {
				address = cfg.HTTP.Address
			}
		}
		return showStatus(cmd.Context(), cmd.OutOrStdout(), address)
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "panelagent %s\n", version)
		fmt.Fprintf(out, "commit: %s\n", commit)
		fmt.Fprintf(out, "go: %s\n", runtime.Version())
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", config.DefaultConfigFile, "config file")
	initCmd.Flags().BoolVar(&initForceFlag, "force", false, "overwrite an existing config file")
	statusCmd.Flags().StringVar(&statusAddress, "address", "", "address of the agent http api")

	rootCmd.AddCommand(runCmd, initCmd, statusCmd, versionCmd)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
