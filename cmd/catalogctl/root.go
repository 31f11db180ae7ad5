package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"media-catalog/internal/database"
	"media-catalog/internal/logging"
	"media-catalog/internal/operations"
	"media-catalog/internal/startup"
)

// defaultServer is used by the remote commands when neither --server nor
// CATALOG_SERVER is set.
const defaultServer = "http://localhost:8080"

func newRootCmd() *cobra.Command {
	var logLevel string

	cmd := &cobra.Command{
		Use:   "catalogctl",
		Short: "Run and inspect media catalog processing from a terminal",
		Long: `catalogctl drives the media catalog's batch operations.

Local commands (process, status, reset, scan, export-states, validate,
duplicates) open the catalog database named by DATABASE_DIR, the same way the
server does. Remote commands
(watch, abort) talk to a running server over HTTP.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			startup.LoadEnvFile()
			if logLevel != "" {
				level, err := logging.ParseLevel(logLevel)
				if err != nil {
					return err
				}
				logging.SetLevel(level)
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error); logs go to stderr")

	cmd.AddCommand(
		newProcessCmd(),
		newStatusCmd(),
		newResetCmd(),
		newScanCmd(),
		newExportCmd(),
		newValidateCmd(),
		newDuplicatesCmd(),
		newWatchCmd(),
		newAbortCmd(),
	)

	return cmd
}

// operationArg validates the operation positional argument.
func operationArg(args []string) (database.OperationType, error) {
	if len(args) != 1 {
		return "", fmt.Errorf("expected one operation, one of %v", database.OperationTypes)
	}
	return operations.Lookup(args[0])
}

func serverFlag(cmd *cobra.Command, server *string) {
	def := os.Getenv("CATALOG_SERVER")
	if def == "" {
		def = defaultServer
	}
	cmd.Flags().StringVar(server, "server", def, "Base URL of the catalog server")
}
