package discovery

import (
	"net/netip"
	"time"

	"github.com/anstrom/newhosts/internal/db"
	"github.com/anstrom/newhosts/internal/probe"
)

// HostResult is the per-tool outcome of one address in a cycle.
type HostResult struct {
	Address netip.Addr                  `json:"address"`
	Results map[probe.Kind]probe.Result `json:"results"`
}

// Result returns the result of one tool for this host.
func (h HostResult) Result(kind probe.Kind) (probe.Result, bool) {
	r, ok := h.Results[kind]
	return r, ok
}

// MAC returns the hardware address, preferring arping over nmap.
func (h HostResult) MAC() (string, bool) {
	for _, kind := range []probe.Kind{probe.KindARPing, probe.KindNmap} {
		if r, ok := h.Results[kind]; ok {
			if mac, ok := r.MAC(); ok {
				return mac, true
			}
		}
	}
	return "", false
}

// Hostname returns the resolved name, or the address itself when no name
// was resolved.
func (h HostResult) Hostname() string {
	if name, ok := h.ResolvedHostname(); ok {
		return name
	}
	return h.Address.String()
}

// ResolvedHostname returns the name only when it is a real resolution and
// not the address echoed back.
func (h HostResult) ResolvedHostname() (string, bool) {
	r, ok := h.Results[probe.KindHostname]
	if !ok {
		return "", false
	}
	name, ok := r.Hostname()
	if !ok || name == h.Address.String() {
		return "", false
	}
	return name, true
}

// Reachable reports whether a reachability tool answered.
func (h HostResult) Reachable() bool {
	if r, ok := h.Results[probe.KindPing]; ok && r.Reachable() {
		return true
	}
	if r, ok := h.Results[probe.KindNmap]; ok && r.Success {
		return true
	}
	return false
}

// HasSignal reports whether any tool produced evidence of a host.
func (h HostResult) HasSignal() bool {
	if h.Reachable() {
		return true
	}
	if _, ok := h.MAC(); ok {
		return true
	}
	_, ok := h.ResolvedHostname()
	return ok
}

// Detection converts the host into the record persisted for a cycle.
func (h HostResult) Detection() db.Detection {
	d := db.Detection{
		IP:       db.IPAddr{Addr: h.Address},
		Hostname: h.Hostname(),
	}
	if mac, ok := h.MAC(); ok {
		d.MAC = &mac
	}
	return d
}

// Clone returns a copy whose result map can be modified independently.
func (h HostResult) Clone() HostResult {
	results := make(map[probe.Kind]probe.Result, len(h.Results))
	for kind, r := range h.Results {
		results[kind] = r
	}
	return HostResult{Address: h.Address, Results: results}
}

// CycleResult is the reduced outcome of one scan cycle. Hosts are kept in
// ascending address order regardless of probe completion order.
type CycleResult struct {
	ID        string        `json:"id"`
	Network   string        `json:"network"`
	Range     string        `json:"range"`
	Timestamp int64         `json:"timestamp"`
	Started   time.Time     `json:"started"`
	Duration  time.Duration `json:"duration"`
	Tools     []probe.Kind  `json:"tools"`
	Hosts     []HostResult  `json:"hosts"`

	index map[netip.Addr]int
}

// NewCycleResult creates an empty result for the given tools.
func NewCycleResult(network string, tools []probe.Kind) *CycleResult {
	return &CycleResult{
		Network: network,
		Tools:   tools,
		index:   make(map[netip.Addr]int),
	}
}

// Host returns the result of one address.
func (c *CycleResult) Host(addr netip.Addr) (HostResult, bool) {
	i, ok := c.lookup(addr)
	if !ok {
		return HostResult{}, false
	}
	return c.Hosts[i], true
}

// Addresses returns the addresses of the cycle in order.
func (c *CycleResult) Addresses() []netip.Addr {
	addrs := make([]netip.Addr, len(c.Hosts))
	for i, h := range c.Hosts {
		addrs[i] = h.Address
	}
	return addrs
}

// Len returns the number of hosts.
func (c *CycleResult) Len() int {
	return len(c.Hosts)
}

// WithSignal counts the hosts with any evidence of presence.
func (c *CycleResult) WithSignal() int {
	n := 0
	for _, h := range c.Hosts {
		if h.HasSignal() {
			n++
		}
	}
	return n
}

// Detections returns the records persisted for the cycle.
func (c *CycleResult) Detections() []db.Detection {
	out := make([]db.Detection, len(c.Hosts))
	for i, h := range c.Hosts {
		out[i] = h.Detection()
	}
	return out
}

// HasTool reports whether the cycle ran the given tool.
func (c *CycleResult) HasTool(kind probe.Kind) bool {
	for _, k := range c.Tools {
		if k == kind {
			return true
		}
	}
	return false
}

// Clone returns a deep copy that can be modified independently.
func (c *CycleResult) Clone() *CycleResult {
	out := *c
	out.Tools = append([]probe.Kind(nil), c.Tools...)
	out.Hosts = make([]HostResult, len(c.Hosts))
	out.index = make(map[netip.Addr]int, len(c.Hosts))
	for i, h := range c.Hosts {
		out.Hosts[i] = h.Clone()
		out.index[h.Address] = i
	}
	return &out
}

// Put inserts or replaces the result of one address, keeping hosts in
// ascending address order.
func (c *CycleResult) Put(h HostResult) {
	if i, ok := c.lookup(h.Address); ok {
		c.Hosts[i] = h
		return
	}

	n := len(c.Hosts)
	if n == 0 || c.Hosts[n-1].Address.Less(h.Address) {
		c.Hosts = append(c.Hosts, h)
		c.index[h.Address] = n
		return
	}

	pos := 0
	for pos < n && c.Hosts[pos].Address.Less(h.Address) {
		pos++
	}
	c.Hosts = append(c.Hosts, HostResult{})
	copy(c.Hosts[pos+1:], c.Hosts[pos:])
	c.Hosts[pos] = h
	for i := pos; i < len(c.Hosts); i++ {
		c.index[c.Hosts[i].Address] = i
	}
}

// AddTool records that kind ran in this result.
func (c *CycleResult) AddTool(kind probe.Kind) {
	if !c.HasTool(kind) {
		c.Tools = append(c.Tools, kind)
	}
}

func (c *CycleResult) lookup(addr netip.Addr) (int, bool) {
	if c.index == nil {
		c.index = make(map[netip.Addr]int, len(c.Hosts))
		for i, h := range c.Hosts {
			c.index[h.Address] = i
		}
	}
	i, ok := c.index[addr]
	return i, ok
}
