// internal/cli/root.go

// Package cli implements the geofence-gateway commands.
package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"geofence-gateway/internal/config"
	"geofence-gateway/internal/storage"
)

var configPath string

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:   "geofence-gateway",
	Short: "Farm geofence radar gateway",
	Long:  "Ingests radar sweeps, flags breaches of the protected zone, notifies the farmer and keeps an alert ledger.",

	SilenceUsage: true,
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", ".", "Directory containing config.yaml")
}

func loadConfig() (*config.Config, error) {
	return config.Load(configPath)
}

func openStore(cfg *config.Config) (*storage.SQLiteStore, error) {
	return storage.NewSQLiteStore(cfg.Storage.Path)
}

func printJSON(cmd *cobra.Command, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(b))
	return err
}
