package xdp

import (
	"fmt"

	"github.com/safchain/ethtool"
)

// Driver returns the kernel driver behind iface, as reported by ethtool.
func Driver(iface string) (string, error) {
	h, err := ethtool.NewEthtool()
	if err != nil {
		return "", fmt.Errorf("failed to open ethtool handle: %w", err)
	}
	defer h.Close()

	info, err := h.DriverInfo(iface)
	if err != nil {
		return "", fmt.Errorf("ethtool DriverInfo failed for %s: %w", iface, err)
	}
	return info.Driver, nil
}

// driverOrUnknown is Driver for log fields.
func driverOrUnknown(iface string) string {
	d, err := Driver(iface)
	if err != nil || d == "" {
		return "unknown"
	}
	return d
}
