package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version is set at build time with -ldflags "-X .../cmd.Version=..."
var Version = "dev"

var configFile string

// RootCmd is the base command when called without any subcommands
var RootCmd = &cobra.Command{
	Use:           "fileshare",
	Short:         "File object and permission management engine",
	Long:          `fileshare stores files in a local, S3 or FTP object store, tracks them in a SQL catalog and enforces per-user read, edit and download permissions.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command. It is called by main.main().
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Configuration file (YAML). Environment variables override file values.")
	RootCmd.AddCommand(serveCmd, reconcileCmd)
}
