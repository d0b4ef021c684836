package scanner

import (
	"github.com/shirou/gopsutil/v4/disk"
)

// listMountPoints returns every mount point the host knows about, including
// pseudo filesystems.
func listMountPoints() ([]string, error) {
	parts, err := disk.Partitions(true)
	if err != nil {
		return nil, err
	}
	points := make([]string, 0, len(parts))
	for _, p := range parts {
		if p.Mountpoint != "" {
			points = append(points, p.Mountpoint)
		}
	}
	return points, nil
}
