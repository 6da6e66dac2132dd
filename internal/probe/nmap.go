package probe

import (
	"context"
	"net/netip"
	"strings"
	"time"

	"github.com/Ullaakut/nmap/v3"

	"github.com/anstrom/newhosts/internal/errors"
	"github.com/anstrom/newhosts/internal/logging"
)

// Nmap checks a single address with an nmap ping scan (-sn). Success means
// nmap reported the host up; Data is the MAC address when nmap saw one,
// which only happens on the local segment and with privileges.
type Nmap struct {
	binary string
	opts   Options
}

// NewNmap creates an nmap prober using the given binary.
func NewNmap(binary string) *Nmap {
	if binary == "" {
		binary = "nmap"
	}
	return &Nmap{binary: binary, opts: DefaultOptions()}
}

// Kind implements Prober.
func (n *Nmap) Kind() Kind { return KindNmap }

// Configure implements Prober.
func (n *Nmap) Configure(opts Options) error {
	if err := opts.validate(); err != nil {
		return err
	}
	n.opts = opts
	return nil
}

func (n *Nmap) options(addr netip.Addr) []nmap.Option {
	options := []nmap.Option{
		nmap.WithBinaryPath(n.binary),
		nmap.WithTargets(addr.String()),
		nmap.WithPingScan(), // Host discovery only, no port scan
		nmap.WithMaxRetries(n.opts.Checks - 1),
	}
	if n.opts.Interface != "" {
		options = append(options, nmap.WithInterface(n.opts.Interface))
	}

	// Add timing based on timeout
	switch timeout := n.opts.Timeout; {
	case timeout > 0 && timeout <= 5*time.Second:
		options = append(options, nmap.WithTimingTemplate(nmap.TimingAggressive), nmap.WithHostTimeout(timeout))
	case timeout > 0:
		options = append(options, nmap.WithTimingTemplate(nmap.TimingNormal), nmap.WithHostTimeout(timeout))
	default:
		options = append(options, nmap.WithTimingTemplate(nmap.TimingNormal))
	}
	return options
}

func (n *Nmap) commandLine(addr netip.Addr) string {
	args := []string{"-sn"}
	if n.opts.Interface != "" {
		args = append(args, "-e", n.opts.Interface)
	}
	return commandLine(n.binary, append(args, addr.String()))
}

// Probe implements Prober.
func (n *Nmap) Probe(ctx context.Context, addr netip.Addr) Result {
	result := Result{Command: n.commandLine(addr)}

	scanner, err := nmap.NewScanner(ctx, n.options(addr)...)
	if err != nil {
		result.Err = errors.WrapProbeError(errors.CodeToolMissing, string(KindNmap), addr.String(), err)
		return result
	}

	run, warnings, err := scanner.Run()
	if warnings != nil && len(*warnings) > 0 {
		result.Stderr = strings.Join(*warnings, "\n")
		logging.DebugProbe("nmap reported warnings", string(KindNmap), addr.String(), "warnings", *warnings)
	}
	if err != nil {
		if ctx.Err() != nil {
			err = ctx.Err()
		}
		result.Err = classifyRunError(KindNmap, addr, err)
		return result
	}

	applyNmapRun(&result, run, addr)
	return result
}

// applyNmapRun copies the state of addr from an nmap run into result.
func applyNmapRun(result *Result, run *nmap.Run, addr netip.Addr) {
	if run == nil {
		return
	}
	for i := range run.Hosts {
		host := &run.Hosts[i]
		if !hostHasAddress(host, addr) {
			continue
		}
		result.Stdout = host.Status.State + " (" + host.Status.Reason + ")"
		if host.Status.State != "up" {
			return
		}
		result.Success = true
		for _, a := range host.Addresses {
			if a.AddrType == "mac" && a.Addr != "" {
				result.Data = a.Addr
				break
			}
		}
		return
	}
}

func hostHasAddress(host *nmap.Host, addr netip.Addr) bool {
	for _, a := range host.Addresses {
		if a.AddrType == "ipv4" && a.Addr == addr.String() {
			return true
		}
	}
	return false
}
