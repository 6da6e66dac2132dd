// Package network turns a network specification into the ordered, inclusive
// sequence of IPv4 addresses a scan cycle covers.
//
// A specification is one of:
//
//	192.168.1.10-192.168.1.20   hyphenated range, both ends included
//	192.168.1.0/24              CIDR block, usable host addresses only
//	192.168.1.7                 single address
//
// Saved networks are resolved by name through Lookup.
package network

import (
	"context"
	"encoding/binary"
	"fmt"
	"iter"
	"net/netip"
	"strings"

	"github.com/anstrom/newhosts/internal/db"
	"github.com/anstrom/newhosts/internal/errors"
)

// AdHocName is the name of a range that was not loaded from the store.
const AdHocName = "-"

// Range is an immutable, inclusive IPv4 address range.
type Range struct {
	Name  string
	Start netip.Addr
	End   netip.Addr
}

// NetworkGetter loads saved networks by name.
type NetworkGetter interface {
	GetNetwork(ctx context.Context, name string) (*db.Network, error)
}

// New builds a range from two addresses. Both must be IPv4 and start must
// not be greater than end.
func New(name string, start, end netip.Addr) (Range, error) {
	spec := start.String() + "-" + end.String()
	if !start.Is4() || !end.Is4() {
		return Range{}, errors.ErrInvalidRange(spec, fmt.Errorf("only IPv4 addresses are supported"))
	}
	if start.Compare(end) > 0 {
		return Range{}, errors.ErrInvalidRange(spec, fmt.Errorf("start %s is greater than end %s", start, end))
	}
	if name == "" {
		name = AdHocName
	}
	return Range{Name: name, Start: start, End: end}, nil
}

// Parse parses a hyphenated range, a CIDR block or a single address.
func Parse(spec string) (Range, error) {
	spec = strings.TrimSpace(spec)

	switch {
	case strings.Contains(spec, "/"):
		return parseCIDR(spec)
	case strings.Contains(spec, "-"):
		first, second, _ := strings.Cut(spec, "-")
		start, err := parseIPv4(first)
		if err != nil {
			return Range{}, errors.ErrInvalidRange(spec, err)
		}
		end, err := parseIPv4(second)
		if err != nil {
			return Range{}, errors.ErrInvalidRange(spec, err)
		}
		return New(AdHocName, start, end)
	default:
		addr, err := parseIPv4(spec)
		if err != nil {
			return Range{}, errors.ErrInvalidRange(spec, err)
		}
		return New(AdHocName, addr, addr)
	}
}

// parseCIDR expands a prefix to its usable hosts. Prefixes up to /30 drop
// the network and broadcast addresses; /31 keeps both (point-to-point
// links) and /32 is the single address.
func parseCIDR(spec string) (Range, error) {
	prefix, err := netip.ParsePrefix(spec)
	if err != nil {
		return Range{}, errors.ErrInvalidCIDR(spec, err)
	}
	if !prefix.Addr().Is4() {
		return Range{}, errors.ErrInvalidCIDR(spec, fmt.Errorf("only IPv4 networks are supported"))
	}
	prefix = prefix.Masked()

	first := toUint32(prefix.Addr())
	last := first | (^uint32(0) >> prefix.Bits())
	if prefix.Bits() <= 30 {
		first++
		last--
	}
	return New(AdHocName, fromUint32(first), fromUint32(last))
}

func parseIPv4(s string) (netip.Addr, error) {
	addr, err := netip.ParseAddr(strings.TrimSpace(s))
	if err != nil {
		return netip.Addr{}, err
	}
	if !addr.Is4() {
		return netip.Addr{}, fmt.Errorf("%s is not an IPv4 address", s)
	}
	return addr, nil
}

// Lookup resolves a saved network by name.
func Lookup(ctx context.Context, store NetworkGetter, name string) (Range, error) {
	saved, err := store.GetNetwork(ctx, name)
	if err != nil {
		if db.IsNotFound(err) {
			return Range{}, errors.ErrUnknownNetwork(name)
		}
		return Range{}, err
	}
	return FromNetwork(*saved)
}

// FromNetwork converts a saved network into a range.
func FromNetwork(n db.Network) (Range, error) {
	return New(n.Name, n.Start.Addr, n.End.Addr)
}

// Network returns the range as a saved network record.
func (r Range) Network() db.Network {
	return db.Network{
		Name:  r.Name,
		Start: db.IPAddr{Addr: r.Start},
		End:   db.IPAddr{Addr: r.End},
	}
}

// All returns a lazy sequence of the addresses in ascending order. Each
// call starts a new iteration.
func (r Range) All() iter.Seq[netip.Addr] {
	return func(yield func(netip.Addr) bool) {
		if !r.Start.IsValid() || !r.End.IsValid() {
			return
		}
		end := toUint32(r.End)
		for n := toUint32(r.Start); ; n++ {
			if !yield(fromUint32(n)) || n == end {
				return
			}
		}
	}
}

// Addresses returns a new slice holding every address in ascending order.
func (r Range) Addresses() []netip.Addr {
	addrs := make([]netip.Addr, 0, r.Len())
	for addr := range r.All() {
		addrs = append(addrs, addr)
	}
	return addrs
}

// Len returns the number of addresses in the range.
func (r Range) Len() int {
	if !r.Start.IsValid() || !r.End.IsValid() {
		return 0
	}
	return int(uint64(toUint32(r.End)) - uint64(toUint32(r.Start)) + 1)
}

// Contains reports whether addr lies within the range.
func (r Range) Contains(addr netip.Addr) bool {
	return addr.Is4() && r.Start.Compare(addr) <= 0 && addr.Compare(r.End) <= 0
}

// String returns the range as "start-end".
func (r Range) String() string {
	return r.Start.String() + "-" + r.End.String()
}

func toUint32(addr netip.Addr) uint32 {
	b := addr.As4()
	return binary.BigEndian.Uint32(b[:])
}

func fromUint32(n uint32) netip.Addr {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], n)
	return netip.AddrFrom4(b)
}
