package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"geofence-gateway/internal/data"
	"geofence-gateway/internal/storage"
)

// seedStore points the CLI at a fresh database holding two unresolved alerts
// and returns their ids.
func seedStore(t *testing.T) []string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cli.db")
	t.Setenv("GEOFENCE_STORAGE_PATH", path)

	s, err := storage.NewSQLiteStore(path)
	require.NoError(t, err)
	defer s.Close()

	var ids []string
	for _, in := range []data.AlertInput{
		{DeviceID: "radar_01", Angle: 40, Distance: 12, Severity: data.SeverityHigh},
		{DeviceID: "radar_01", Angle: 90, Distance: 25, Severity: data.SeverityLow},
	} {
		a, err := s.CreateAlert(context.Background(), in)
		require.NoError(t, err)
		ids = append(ids, a.ID)
	}
	require.NoError(t, s.Close())
	return ids
}

// execute runs the root command with fresh flag values and returns stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(RootCmd)

	var out bytes.Buffer
	RootCmd.SetOut(&out)
	RootCmd.SetErr(io.Discard)
	RootCmd.SetArgs(append([]string{"--config", t.TempDir()}, args...))
	err := RootCmd.Execute()
	return out.String(), err
}

func resetFlags(cmd *cobra.Command) {
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		f.Value.Set(f.DefValue)
		f.Changed = false
	})
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

func decodeList(t *testing.T, out string) (int, []data.MovementAlert) {
	t.Helper()
	var res struct {
		Total int                  `json:"total"`
		Data  []data.MovementAlert `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &res), out)
	return res.Total, res.Data
}

func TestAlertsListFilters(t *testing.T) {
	seedStore(t)

	out, err := execute(t, "alerts", "list")
	require.NoError(t, err)
	total, alerts := decodeList(t, out)
	assert.Equal(t, 2, total)
	assert.Len(t, alerts, 2)

	out, err = execute(t, "alerts", "list", "--severity", "low")
	require.NoError(t, err)
	total, alerts = decodeList(t, out)
	assert.Equal(t, 1, total)
	assert.Equal(t, 90, alerts[0].Angle)

	out, err = execute(t, "alerts", "list", "--resolved", "true")
	require.NoError(t, err)
	total, _ = decodeList(t, out)
	assert.Zero(t, total)

	_, err = execute(t, "alerts", "list", "--resolved", "maybe")
	assert.ErrorContains(t, err, "--resolved")

	_, err = execute(t, "alerts", "list", "--severity", "extreme")
	assert.ErrorContains(t, err, "unknown severity")
}

func TestAlertsResolve(t *testing.T) {
	ids := seedStore(t)

	out, err := execute(t, "alerts", "resolve", ids[0])
	require.NoError(t, err)
	var alert data.MovementAlert
	require.NoError(t, json.Unmarshal([]byte(out), &alert), out)
	assert.True(t, alert.IsResolved)
	assert.Equal(t, data.DefaultResolver, alert.ResolvedBy)
	assert.NotNil(t, alert.ResolvedAt)

	out, err = execute(t, "alerts", "resolve", ids[1], "--by", "ana", "--notes", "fox")
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &alert), out)
	assert.Equal(t, "ana", alert.ResolvedBy)
	assert.Equal(t, "fox", alert.ResolutionNotes)

	out, err = execute(t, "alerts", "list", "--resolved", "false")
	require.NoError(t, err)
	total, _ := decodeList(t, out)
	assert.Zero(t, total)

	_, err = execute(t, "alerts", "resolve", "missing")
	assert.ErrorIs(t, err, data.ErrNotFound)

	_, err = execute(t, "alerts", "resolve")
	assert.Error(t, err, "id is required")
}

func TestStatsCommand(t *testing.T) {
	seedStore(t)

	out, err := execute(t, "stats", "--hours", "2")
	require.NoError(t, err)
	var st data.Stats
	require.NoError(t, json.Unmarshal([]byte(out), &st), out)
	assert.Equal(t, "radar_01", st.DeviceID)
	assert.Equal(t, 2, st.WindowHours)
	assert.Equal(t, 2, st.TotalAlerts)
	assert.Equal(t, 2, st.UnresolvedAlerts)
	assert.Nil(t, st.ClosestDetection)

	out, err = execute(t, "stats", "--device", "radar_09")
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &st), out)
	assert.Equal(t, "radar_09", st.DeviceID)
	assert.Equal(t, 24, st.WindowHours)
	assert.Zero(t, st.TotalAlerts)

	_, err = execute(t, "stats", "--hours", "0")
	assert.ErrorContains(t, err, "hours must be > 0")
}
