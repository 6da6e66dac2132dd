package probe

import (
	"github.com/anstrom/newhosts/internal/config"
	"github.com/anstrom/newhosts/internal/errors"
)

// Set is the configured probers of one scan session, in report order,
// together with the worker count of each tool's pool.
type Set struct {
	Probers []Prober
	Workers map[Kind]int
}

// Kinds returns the kinds of the configured probers in order.
func (s Set) Kinds() []Kind {
	kinds := make([]Kind, len(s.Probers))
	for i, p := range s.Probers {
		kinds[i] = p.Kind()
	}
	return kinds
}

// Has reports whether a prober of the given kind is configured.
func (s Set) Has(kind Kind) bool {
	for _, p := range s.Probers {
		if p.Kind() == kind {
			return true
		}
	}
	return false
}

// Build creates and configures the enabled probers. External commands run
// through runner; nil selects ExecRunner.
func Build(cfg config.ProbesConfig, runner Runner) (Set, error) {
	opts := Options{
		Interface: cfg.Interface,
		Checks:    cfg.Checks,
		Timeout:   cfg.Timeout,
	}

	set := Set{Workers: make(map[Kind]int, len(cfg.Tools))}
	for _, tool := range cfg.Tools {
		var (
			p       Prober
			workers int
		)
		switch Kind(tool) {
		case KindPing:
			p, workers = NewPing(cfg.Ping.Command, runner), cfg.Ping.Workers
		case KindARPing:
			p, workers = NewARPing(cfg.ARPing.Command, runner), cfg.ARPing.Workers
		case KindHostname:
			p, workers = NewHostname(cfg.Hostname.Resolver), cfg.Hostname.Workers
		case KindNmap:
			p, workers = NewNmap(cfg.Nmap.Command), cfg.Nmap.Workers
		default:
			return Set{}, errors.ErrConfigInvalid("probes.tools", tool)
		}
		if set.Has(p.Kind()) {
			return Set{}, errors.ErrConfigInvalid("probes.tools", tool)
		}
		if err := p.Configure(opts); err != nil {
			return Set{}, err
		}
		set.Probers = append(set.Probers, p)
		set.Workers[p.Kind()] = workers
	}

	if len(set.Probers) == 0 {
		return Set{}, errors.ErrConfigMissing("probes.tools")
	}
	return set, nil
}
