// Package systeminfo identifies the host a database or report was written
// on.
package systeminfo

import (
	"net/netip"
	"os"
	"os/user"
	"slices"
	"strings"

	"github.com/shirou/gopsutil/v4/host"
	gnet "github.com/shirou/gopsutil/v4/net"

	"tripline/logger"
)

// Identity is stamped into database and report headers.
type Identity struct {
	Creator    string `json:"creator"`
	SystemName string `json:"system_name"`
	IPAddress  string `json:"ip_address"`
	HostID     string `json:"host_id"`
	OSVersion  string `json:"os_version"`
}

var (
	hostInfo    = host.Info
	interfaces  = gnet.Interfaces
	currentUser = user.Current
	hostname    = os.Hostname
)

// Gather collects what it can. Missing pieces are logged and left empty.
func Gather() Identity {
	var id Identity
	if u, err := currentUser(); err == nil {
		id.Creator = u.Username
	} else {
		logger.Debugf("Failed to resolve current user: %v", err)
	}

	if info, err := hostInfo(); err == nil {
		id.SystemName = info.Hostname
		id.HostID = info.HostID
		id.OSVersion = strings.TrimSpace(strings.Join([]string{info.Platform, info.PlatformVersion}, " "))
		if id.OSVersion == "" {
			id.OSVersion = info.OS
		}
	} else {
		logger.Warnf("Failed to gather host information: %v", err)
	}
	if id.SystemName == "" {
		id.SystemName, _ = hostname()
	}

	if list, err := interfaces(); err == nil {
		id.IPAddress = primaryAddress(list)
	} else {
		logger.Warnf("Failed to gather network interfaces: %v", err)
	}
	return id
}

// primaryAddress picks the first global address of an interface that is up
// and not loopback, preferring IPv4.
func primaryAddress(list gnet.InterfaceStatList) string {
	var v6 string
	for _, iface := range list {
		if !slices.Contains(iface.Flags, "up") || slices.Contains(iface.Flags, "loopback") {
			continue
		}
		for _, a := range iface.Addrs {
			prefix, err := netip.ParsePrefix(a.Addr)
			if err != nil {
				continue
			}
			addr := prefix.Addr()
			if !addr.IsGlobalUnicast() {
				continue
			}
			if addr.Is4() {
				return addr.String()
			}
			if v6 == "" {
				v6 = addr.String()
			}
		}
	}
	return v6
}
