// internal/cli/stats.go
package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show reading and alert statistics for a device",
		RunE:  runStats,
	}
	cmd.Flags().String("device", "", "Device id (default: radar.default_device_id)")
	cmd.Flags().Int("hours", 24, "Lookback window in hours")

	RootCmd.AddCommand(cmd)
}

func runStats(cmd *cobra.Command, args []string) error {
	device, _ := cmd.Flags().GetString("device")
	hours, _ := cmd.Flags().GetInt("hours")
	if hours <= 0 {
		return fmt.Errorf("hours must be > 0, got %d", hours)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if device == "" {
		device = cfg.Radar.DefaultDeviceID
	}
	s, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer s.Close()

	stats, err := s.Stats(cmd.Context(), device, time.Duration(hours)*time.Hour)
	if err != nil {
		return fmt.Errorf("stats: %w", err)
	}
	return printJSON(cmd, stats)
}
