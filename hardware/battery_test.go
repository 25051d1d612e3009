package hardware

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/distatus/battery"

	"github.com/ilievs/panelagent/core"
	"github.com/ilievs/panelagent/monitor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSupply(t *testing.T, root, name string, attrs map[string]string) {
	t.Helper()
	dir := filepath.Join(root, name)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	for k, v := range attrs {
		require.NoError(t, os.WriteFile(filepath.Join(dir, k), []byte(v+"\n"), 0o644))
	}
}

func TestSysfsBatterySnapshot(t *testing.T) {
	root := t.TempDir()
	writeSupply(t, root, "AC", map[string]string{"type": "Mains", "online": "1"})
	writeSupply(t, root, "BAT0", map[string]string{"type": "Battery", "capacity": "45", "status": "Full"})

	snap, err := NewSysfsBattery(root).Snapshot(context.Background())
	require.NoError(t, err)

	assert.Equal(t, monitor.BatterySnapshot{Level: 45, Scale: 100, Status: monitor.BatteryStatusFull}, snap)
	pct, ok := snap.Percent()
	assert.True(t, ok)
	assert.Equal(t, 45, pct)
	assert.True(t, snap.Charging())
}

func TestSysfsBatteryMissing(t *testing.T) {
	root := t.TempDir()
	writeSupply(t, root, "AC", map[string]string{"type": "Mains", "online": "1"})

	_, err := NewSysfsBattery(root).Snapshot(context.Background())
	assert.ErrorIs(t, err, core.ErrUnavailable)

	_, err = NewSysfsBattery(filepath.Join(root, "nope")).Snapshot(context.Background())
	assert.ErrorIs(t, err, core.ErrUnavailable)
}

func TestSysfsBatteryBadCapacity(t *testing.T) {
	root := t.TempDir()
	writeSupply(t, root, "BAT0", map[string]string{"type": "Battery", "capacity": "lots"})

	_, err := NewSysfsBattery(root).Snapshot(context.Background())
	assert.ErrorIs(t, err, core.ErrUnavailable)
}

func TestParseStatus(t *testing.T) {
	assert.Equal(t, monitor.BatteryStatusCharging, parseStatus("Charging"))
	assert.Equal(t, monitor.BatteryStatusDischarging, parseStatus("Discharging"))
	assert.Equal(t, monitor.BatteryStatusNotCharging, parseStatus("Not charging"))
	assert.Equal(t, monitor.BatteryStatusFull, parseStatus("Full"))
	assert.Equal(t, monitor.BatteryStatusUnknown, parseStatus(""))
}

func TestSnapshotFromReading(t *testing.T) {
	tests := []struct {
		name    string
		current float64
		full    float64
		state   string
		want    monitor.BatterySnapshot
	}{
		{"charging", 22500, 50000, "Charging", monitor.BatterySnapshot{Level: 45, Scale: 100, Status: monitor.BatteryStatusCharging}},
		{"rounds", 2, 3, "Discharging", monitor.BatterySnapshot{Level: 67, Scale: 100, Status: monitor.BatteryStatusDischarging}},
		{"empty", 0, 40, "Empty", monitor.BatterySnapshot{Level: 0, Scale: 100, Status: monitor.BatteryStatusDischarging}},
		{"full", 41, 40, "full", monitor.BatterySnapshot{Level: 100, Scale: 100, Status: monitor.BatteryStatusFull}},
		{"idle", 30, 40, "Idle", monitor.BatterySnapshot{Level: 75, Scale: 100, Status: monitor.BatteryStatusNotCharging}},
		{"unknown", 10, 40, "Unknown", monitor.BatterySnapshot{Level: 25, Scale: 100, Status: monitor.BatteryStatusUnknown}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, snapshotFromReading(tt.current, tt.full, tt.state))
		})
	}
}

func TestSystemBatterySnapshot(t *testing.T) {
	b := &SystemBattery{getAll: func() ([]*battery.Battery, error) {
		return []*battery.Battery{
			nil,
			{Current: 5, Full: 0},
			{Current: 30, Full: 60, State: battery.State{Raw: battery.Charging}},
		}, errors.New("first battery unreadable")
	}}

	snap, err := b.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 50, snap.Level)
	assert.Equal(t, 100, snap.Scale)
	assert.Equal(t, monitor.BatteryStatusCharging, snap.Status)
}

func TestSystemBatteryUnavailable(t *testing.T) {
	b := &SystemBattery{getAll: func() ([]*battery.Battery, error) {
		return nil, errors.New("no power supply class")
	}}
	_, err := b.Snapshot(context.Background())
	assert.ErrorIs(t, err, core.ErrUnavailable)

	b = &SystemBattery{getAll: func() ([]*battery.Battery, error) { return nil, nil }}
	_, err = b.Snapshot(context.Background())
	assert.ErrorIs(t, err, core.ErrUnavailable)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = NewSystemBattery().Snapshot(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
