// Package hwsim controls the mac80211_hwsim simulated-radio driver and
// discovers the radios it exposes through sysfs.
package hwsim

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/hwsimlab/hwsimperf/internal/proc"
)

// ModuleName is the kernel module providing the simulated radios.
const ModuleName = "mac80211_hwsim"

// Radio identifies one simulated radio: its physical-layer handle and the
// network interface bound to it. Immutable once discovered.
type Radio struct {
	Phy string
	Dev string
}

func (r Radio) String() string {
	return fmt.Sprintf("%s/%s", r.Phy, r.Dev)
}

// EnsureDriver loads the simulation driver with the requested radio count.
// An already-loaded module is removed first so the radio count always takes
// effect. sysRoot is the sysfs mount point (normally "/sys").
func EnsureDriver(r proc.Runner, sysRoot string, radios int) error {
	if _, err := os.Stat(filepath.Join(sysRoot, "module", ModuleName)); err == nil {
		if err := r.Run([]string{"rmmod", ModuleName}, nil); err != nil {
			return err
		}
	}
	return r.Run([]string{"modprobe", ModuleName, fmt.Sprintf("radios=%d", radios)}, nil)
}

// DiscoverRadios scans the driver's device class directory (normally
// "/sys/class/mac80211_hwsim") and returns the radios in name order. Each
// device entry carries its interface name under net/ and its phy name under
// ieee80211/.
func DiscoverRadios(classRoot string) ([]Radio, error) {
	entries, err := os.ReadDir(classRoot)
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", classRoot, err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	radios := make([]Radio, 0, len(entries))
	for _, e := range entries {
		devDir := filepath.Join(classRoot, e.Name())
		dev, err := onlyEntry(filepath.Join(devDir, "net"))
		if err != nil {
			return nil, err
		}
		phy, err := onlyEntry(filepath.Join(devDir, "ieee80211"))
		if err != nil {
			return nil, err
		}
		radios = append(radios, Radio{Phy: phy, Dev: dev})
	}
	return radios, nil
}

// onlyEntry returns the name of the first entry in dir; sysfs exposes
// exactly one interface and one phy per simulated device.
func onlyEntry(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("scan %s: %w", dir, err)
	}
	if len(entries) == 0 {
		return "", fmt.Errorf("scan %s: no entries", dir)
	}
	return entries[0].Name(), nil
}
