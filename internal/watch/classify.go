package watch

import (
	"fmt"
	"net/netip"
	"strings"

	"github.com/anstrom/newhosts/internal/db"
	"github.com/anstrom/newhosts/internal/discovery"
	"github.com/anstrom/newhosts/internal/probe"
)

// Status classifies an address against a historical snapshot. Its value is
// the symbol printed at the start of a report line.
type Status string

// Address statuses.
const (
	StatusObserved        Status = " "
	StatusNew             Status = "+"
	StatusMACLost         Status = "-"
	StatusMACChanged      Status = "!"
	StatusHostnameChanged Status = "~"
	StatusUnchanged       Status = "="
)

// Symbol returns the single character printed for the status.
func (s Status) Symbol() string {
	return string(s)
}

// Name returns the status as a label.
func (s Status) Name() string {
	switch s {
	case StatusNew:
		return "new"
	case StatusMACLost:
		return "mac_lost"
	case StatusMACChanged:
		return "mac_changed"
	case StatusHostnameChanged:
		return "hostname_changed"
	case StatusUnchanged:
		return "unchanged"
	default:
		return "observed"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.Name()), nil
}

// Changed reports whether the status is a difference from history.
func (s Status) Changed() bool {
	switch s {
	case StatusNew, StatusMACLost, StatusMACChanged, StatusHostnameChanged:
		return true
	}
	return false
}

// Entry is the classification of one address.
type Entry struct {
	Address  netip.Addr           `json:"address"`
	Status   Status               `json:"status"`
	Message  string               `json:"message,omitempty"`
	Host     discovery.HostResult `json:"host"`
	Previous *db.Detection        `json:"previous,omitempty"`
}

// MAC returns the current hardware address or an empty string.
func (e Entry) MAC() string {
	mac, _ := e.Host.MAC()
	return mac
}

// Hostname returns the current hostname, falling back to the address.
func (e Entry) Hostname() string {
	return e.Host.Hostname()
}

// Classify compares the current results with a historical snapshot. A nil
// history means no comparison was requested and every address is
// observed. Addresses unknown to history that show no sign of a host are
// left out. The result follows the address order of current.
func Classify(history db.Snapshot, current *discovery.CycleResult) []Entry {
	entries := make([]Entry, 0, current.Len())
	compareNames := current.HasTool(probe.KindHostname)

	for _, host := range current.Hosts {
		entry := Entry{
			Address: host.Address,
			Status:  StatusObserved,
			Host:    host,
		}
		if history == nil {
			entries = append(entries, entry)
			continue
		}

		prev, known := history[host.Address]
		if !known {
			if !host.HasSignal() {
				continue
			}
			entry.Status = StatusNew
			entry.Message = "new host"
			entries = append(entries, entry)
			continue
		}

		entry.Previous = &prev
		entry.Status, entry.Message = compare(prev, host, compareNames)
		entries = append(entries, entry)
	}
	return entries
}

func compare(prev db.Detection, host discovery.HostResult, compareNames bool) (Status, string) {
	oldMAC := prev.MACString()
	newMAC, hasMAC := host.MAC()

	switch {
	case oldMAC != "" && !hasMAC:
		return StatusMACLost, fmt.Sprintf("MAC lost (was %s)", oldMAC)
	case oldMAC != "" && !strings.EqualFold(oldMAC, newMAC):
		return StatusMACChanged, fmt.Sprintf("MAC changed (was %s)", oldMAC)
	case compareNames && prev.Hostname != host.Hostname():
		return StatusHostnameChanged, fmt.Sprintf("hostname changed (was %s)", prev.Hostname)
	}
	return StatusUnchanged, ""
}
