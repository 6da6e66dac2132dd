package probe

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"strings"
	"time"

	"github.com/miekg/dns"

	"github.com/anstrom/newhosts/internal/errors"
)

const defaultDNSTimeout = 2 * time.Second

// exchanger sends one DNS message. *dns.Client implements it.
type exchanger interface {
	ExchangeContext(ctx context.Context, m *dns.Msg, address string) (*dns.Msg, time.Duration, error)
}

// Hostname resolves the name of an address. A PTR query is sent to the
// configured DNS server first; the system resolver (which also reads the
// hosts file) is the fallback. When nothing resolves, Data is the address
// itself and Success is false.
type Hostname struct {
	resolver   string
	client     exchanger
	lookupAddr func(ctx context.Context, addr string) ([]string, error)
	opts       Options
}

// NewHostname creates a name-resolution prober. resolver is a host:port
// DNS server address; empty skips straight to the system resolver.
func NewHostname(resolver string) *Hostname {
	return &Hostname{
		resolver:   resolver,
		client:     &dns.Client{Net: "udp", Timeout: defaultDNSTimeout},
		lookupAddr: net.DefaultResolver.LookupAddr,
		opts:       DefaultOptions(),
	}
}

// Kind implements Prober.
func (h *Hostname) Kind() Kind { return KindHostname }

// Configure implements Prober. The interface option does not apply to name
// resolution; the timeout bounds each DNS exchange.
func (h *Hostname) Configure(opts Options) error {
	if err := opts.validate(); err != nil {
		return err
	}
	h.opts = opts
	if c, ok := h.client.(*dns.Client); ok && opts.Timeout > 0 {
		c.Timeout = opts.Timeout
	}
	return nil
}

// Probe implements Prober.
func (h *Hostname) Probe(ctx context.Context, addr netip.Addr) Result {
	result := Result{Data: addr.String()}
	var failures []string

	if h.resolver != "" {
		result.Command = fmt.Sprintf("dig -x %s @%s", addr, h.resolver)
		name, err := h.queryPTR(ctx, addr)
		if err == nil && name != "" {
			result.Success = true
			result.Data = name
			result.Stdout = name
			return result
		}
		if err != nil {
			failures = append(failures, err.Error())
		}
	}

	if result.Command == "" {
		result.Command = "getent hosts " + addr.String()
	}
	names, err := h.lookupAddr(ctx, addr.String())
	if err == nil && len(names) > 0 {
		name := strings.TrimSuffix(names[0], ".")
		result.Success = true
		result.Data = name
		result.Stdout = name
		return result
	}
	if err != nil {
		failures = append(failures, err.Error())
	}

	// Unresolvable addresses are normal; only a canceled or expired
	// context turns the fallback into an error.
	result.Stderr = strings.Join(failures, "; ")
	if ctxErr := ctx.Err(); ctxErr != nil {
		result.Err = classifyRunError(KindHostname, addr, ctxErr)
	}
	return result
}

func (h *Hostname) queryPTR(ctx context.Context, addr netip.Addr) (string, error) {
	reverse, err := dns.ReverseAddr(addr.String())
	if err != nil {
		return "", err
	}

	m := new(dns.Msg)
	m.SetQuestion(reverse, dns.TypePTR)
	m.RecursionDesired = true

	in, _, err := h.client.ExchangeContext(ctx, m, h.resolver)
	if err != nil {
		return "", errors.WrapProbeError(errors.CodeProbeFailed, string(KindHostname), addr.String(), err)
	}
	if in.Rcode != dns.RcodeSuccess {
		return "", fmt.Errorf("PTR %s: %s", reverse, dns.RcodeToString[in.Rcode])
	}
	for _, rr := range in.Answer {
		if ptr, ok := rr.(*dns.PTR); ok {
			return strings.TrimSuffix(ptr.Ptr, "."), nil
		}
	}
	return "", nil
}
