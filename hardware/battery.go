// Package hardware reads panel hardware. Batteries come from the platform
// battery API, or from a sysfs power_supply directory when one is configured.
// Temperature sensors are read through gopsutil and camera frames from a raw
// video stream.
package hardware

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/distatus/battery"

	"github.com/ilievs/panelagent/core"
	"github.com/ilievs/panelagent/monitor"
)

const DefaultPowerSupplyPath = "/sys/class/power_supply"

// SystemBattery reads the first battery reported by the operating system.
type SystemBattery struct {
	getAll func() ([]*battery.Battery, error)
}

func NewSystemBattery() *SystemBattery {
	return &SystemBattery{getAll: battery.GetAll}
}

func (b *SystemBattery) Snapshot(ctx context.Context) (monitor.BatterySnapshot, error) {
	if err := ctx.Err(); err != nil {
		return monitor.BatterySnapshot{}, err
	}

	// partial errors still come with usable readings
	all, err := b.getAll()
	for _, bat := range all {
		if bat == nil || bat.Full <= 0 {
			continue
		}
		return snapshotFromReading(bat.Current, bat.Full, bat.State.String()), nil
	}
	if err != nil {
		return monitor.BatterySnapshot{}, fmt.Errorf("%w: %v", core.ErrUnavailable, err)
	}
	return monitor.BatterySnapshot{}, fmt.Errorf("%w: no battery found", core.ErrUnavailable)
}

// snapshotFromReading converts a charge reading in any unit to a percentage.
func snapshotFromReading(current, full float64, state string) monitor.BatterySnapshot {
	level := int(math.Round(current / full * 100))
	return monitor.BatterySnapshot{
		Level:  min(max(level, 0), 100),
		Scale:  100,
		Status: systemStatus(state),
	}
}

func systemStatus(state string) monitor.BatteryStatus {
	switch strings.ToLower(state) {
	case "charging":
		return monitor.BatteryStatusCharging
	case "discharging", "empty":
		return monitor.BatteryStatusDischarging
	case "full":
		return monitor.BatteryStatusFull
	case "idle":
		return monitor.BatteryStatusNotCharging
	default:
		return monitor.BatteryStatusUnknown
	}
}

// SysfsBattery reads the first battery found under a power_supply directory.
type SysfsBattery struct {
	root string
}

func NewSysfsBattery(root string) *SysfsBattery {
	if root == "" {
		root = DefaultPowerSupplyPath
	}
	return &SysfsBattery{root: root}
}

func (b *SysfsBattery) Snapshot(ctx context.Context) (monitor.BatterySnapshot, error) {
	if err := ctx.Err(); err != nil {
		return monitor.BatterySnapshot{}, err
	}

	dir, err := b.findBattery()
	if err != nil {
		return monitor.BatterySnapshot{}, err
	}

	capacity, err := readAttr(dir, "capacity")
	if err != nil {
		return monitor.BatterySnapshot{}, fmt.Errorf("%w: %v", core.ErrUnavailable, err)
	}
	level, err := strconv.Atoi(capacity)
	if err != nil {
		return monitor.BatterySnapshot{}, fmt.Errorf("%w: bad capacity %q", core.ErrUnavailable, capacity)
	}

	// status is optional on some gauges
	status, _ := readAttr(dir, "status")

	return monitor.BatterySnapshot{
		Level:  level,
		Scale:  100,
		Status: parseStatus(status),
	}, nil
}

func (b *SysfsBattery) findBattery() (string, error) {
	entries, err := os.ReadDir(b.root)
	if err != nil {
		return "", fmt.Errorf("%w: %v", core.ErrUnavailable, err)
	}
	for _, e := range entries {
		dir := filepath.Join(b.root, e.Name())
		if kind, err := readAttr(dir, "type"); err == nil && kind == "Battery" {
			return dir, nil
		}
	}
	return "", fmt.Errorf("%w: no battery in %s", core.ErrUnavailable, b.root)
}

func readAttr(dir, name string) (string, error) {
	raw, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(raw)), nil
}

func parseStatus(s string) monitor.BatteryStatus {
	switch s {
	case "Charging":
		return monitor.BatteryStatusCharging
	case "Discharging":
		return monitor.BatteryStatusDischarging
	case "Not charging":
		return monitor.BatteryStatusNotCharging
	case "Full":
		return monitor.BatteryStatusFull
	default:
		return monitor.BatteryStatusUnknown
	}
}
