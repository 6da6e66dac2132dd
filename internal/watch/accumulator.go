package watch

import (
	"sync"

	"github.com/anstrom/newhosts/internal/discovery"
	"github.com/anstrom/newhosts/internal/probe"
)

// Accumulator merges the results of successive cycles into one view.
//
// An address seen for the first time is inserted as is. For a known
// address, an arping result only replaces the stored one when it carries a
// MAC, and a hostname result only replaces the stored one when it is a real
// name and not the address echoed back. An nmap result always updates the
// up/down state but keeps the known MAC when it reports none. Every other
// tool keeps the latest result.
type Accumulator struct {
	mu     sync.Mutex
	result *discovery.CycleResult
	cycles int
}

// NewAccumulator creates an empty accumulator.
func NewAccumulator() *Accumulator {
	return &Accumulator{}
}

// Merge folds one cycle into the accumulated view and returns a copy of it.
func (a *Accumulator) Merge(cycle *discovery.CycleResult) *discovery.CycleResult {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.result == nil {
		a.result = discovery.NewCycleResult(cycle.Network, nil)
		a.result.Started = cycle.Started
	}
	a.cycles++

	acc := a.result
	acc.ID = cycle.ID
	acc.Range = cycle.Range
	acc.Timestamp = cycle.Timestamp
	acc.Duration = cycle.Duration
	for _, kind := range cycle.Tools {
		acc.AddTool(kind)
	}

	for _, host := range cycle.Hosts {
		known, ok := acc.Host(host.Address)
		if !ok {
			acc.Put(host.Clone())
			continue
		}
		merged := known.Clone()
		for kind, r := range host.Results {
			if prev, seen := merged.Results[kind]; seen {
				r = mergeResult(kind, host, prev, r)
			}
			merged.Results[kind] = r
		}
		acc.Put(merged)
	}

	return acc.Clone()
}

// mergeResult returns what the accumulator keeps for a tool that already
// has a stored result prev when r arrives.
func mergeResult(kind probe.Kind, host discovery.HostResult, prev, r probe.Result) probe.Result {
	switch kind {
	case probe.KindARPing:
		if _, ok := r.MAC(); !ok {
			return prev
		}
	case probe.KindHostname:
		if name, ok := r.Hostname(); !ok || name == host.Address.String() {
			return prev
		}
	case probe.KindNmap:
		if _, ok := r.MAC(); ok {
			return r
		}
		if mac, ok := prev.MAC(); ok {
			r.Data = mac
		}
	}
	return r
}

// Result returns a copy of the accumulated view, or nil before the first
// merge.
func (a *Accumulator) Result() *discovery.CycleResult {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.result == nil {
		return nil
	}
	return a.result.Clone()
}

// Cycles returns the number of merged cycles.
func (a *Accumulator) Cycles() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cycles
}
