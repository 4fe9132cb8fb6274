// internal/cli/alerts.go
package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"geofence-gateway/internal/data"
)

func init() {
	alertsCmd := &cobra.Command{
		Use:   "alerts",
		Short: "Inspect and resolve ledger alerts",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List alerts, newest first",
		RunE:  runAlertsList,
	}
	list.Flags().String("device", "", "Filter by device id")
	list.Flags().String("resolved", "", "Filter by resolution state (true or false)")
	list.Flags().String("severity", "", "Filter by severity (low, medium, high)")
	list.Flags().IntP("limit", "l", 20, "Max results")
	list.Flags().Int("offset", 0, "Skip this many alerts")

	resolve := &cobra.Command{
		Use:   "resolve <id>",
		Short: "Mark an alert resolved",
		Args:  cobra.ExactArgs(1),
		RunE:  runAlertsResolve,
	}
	resolve.Flags().String("by", "", "Who resolved it (default: system)")
	resolve.Flags().String("notes", "", "Resolution notes")

	alertsCmd.AddCommand(list, resolve)
	RootCmd.AddCommand(alertsCmd)
}

func runAlertsList(cmd *cobra.Command, args []string) error {
	device, _ := cmd.Flags().GetString("device")
	resolved, _ := cmd.Flags().GetString("resolved")
	severity, _ := cmd.Flags().GetString("severity")
	limit, _ := cmd.Flags().GetInt("limit")
	offset, _ := cmd.Flags().GetInt("offset")

	filter := data.AlertFilter{DeviceID: device, Severity: data.Severity(severity)}
	if severity != "" && !filter.Severity.Valid() {
		return fmt.Errorf("unknown severity %q", severity)
	}
	if resolved != "" {
		b, err := strconv.ParseBool(resolved)
		if err != nil {
			return fmt.Errorf("--resolved must be true or false, got %q", resolved)
		}
		filter.IsResolved = &b
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	s, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer s.Close()

	alerts, total, err := s.ListAlerts(cmd.Context(), filter, data.Page{Limit: limit, Offset: offset})
	if err != nil {
		return fmt.Errorf("list alerts: %w", err)
	}
	return printJSON(cmd, map[string]any{"total": total, "data": alerts})
}

func runAlertsResolve(cmd *cobra.Command, args []string) error {
	by, _ := cmd.Flags().GetString("by")
	notes, _ := cmd.Flags().GetString("notes")
	if by == "" {
		by = data.DefaultResolver
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	s, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer s.Close()

	alert, err := s.ResolveAlert(cmd.Context(), args[0], data.ResolveInput{ResolvedBy: by, ResolutionNotes: notes})
	if err != nil {
		return fmt.Errorf("resolve alert: %w", err)
	}
	return printJSON(cmd, alert)
}
