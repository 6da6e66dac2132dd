package db

import (
	"database/sql/driver"
	"fmt"
	"net/netip"
)

// IPAddr wraps netip.Addr to store addresses as TEXT.
type IPAddr struct {
	netip.Addr
}

// Scan implements sql.Scanner.
func (ip *IPAddr) Scan(value interface{}) error {
	if value == nil {
		ip.Addr = netip.Addr{}
		return nil
	}

	var raw string
	switch v := value.(type) {
	case string:
		raw = v
	case []byte:
		raw = string(v)
	default:
		return fmt.Errorf("cannot scan %T into IPAddr", value)
	}

	parsed, err := netip.ParseAddr(raw)
	if err != nil {
		return fmt.Errorf("failed to parse IP address: %s", raw)
	}
	ip.Addr = parsed
	return nil
}

// Value implements driver.Valuer.
func (ip IPAddr) Value() (driver.Value, error) {
	if !ip.IsValid() {
		return nil, nil
	}
	return ip.Addr.String(), nil
}

// String returns the IP address string.
func (ip IPAddr) String() string {
	if !ip.IsValid() {
		return ""
	}
	return ip.Addr.String()
}

// Detection is one persisted observation of an address. Rows are appended
// once per scan cycle and never updated.
type Detection struct {
	Timestamp int64   `db:"timestamp" json:"timestamp"`
	IP        IPAddr  `db:"ip" json:"ip"`
	MAC       *string `db:"mac" json:"mac,omitempty"`
	Hostname  string  `db:"hostname" json:"hostname"`
}

// MACString returns the MAC address or an empty string when none was seen.
func (d Detection) MACString() string {
	if d.MAC == nil {
		return ""
	}
	return *d.MAC
}

// Snapshot is the detection set recorded at one timestamp, keyed by address.
type Snapshot map[netip.Addr]Detection

// Network is a saved, named address range.
type Network struct {
	Name  string `db:"name" json:"name"`
	Start IPAddr `db:"ip_starting" json:"ip_starting"`
	End   IPAddr `db:"ip_ending" json:"ip_ending"`
}

// HistoryEntry summarizes the detections recorded at one timestamp.
type HistoryEntry struct {
	Timestamp int64 `db:"timestamp" json:"timestamp"`
	Hosts     int   `db:"hosts" json:"hosts"`
	WithMAC   int   `db:"with_mac" json:"with_mac"`
}
