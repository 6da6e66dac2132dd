// Package probe wraps the external tools that examine a single address.
//
// Every tool implements Prober. A prober is configured once per scan
// session and is then safe for concurrent use: Probe never mutates the
// prober and always returns a Result, recording failures in it instead of
// returning an error.
package probe

import (
	"context"
	"encoding/json"
	"net/netip"
	"strings"
	"time"

	"github.com/anstrom/newhosts/internal/errors"
)

// Kind identifies a probe tool.
type Kind string

// Available probe kinds.
const (
	KindPing     Kind = "ping"
	KindARPing   Kind = "arping"
	KindHostname Kind = "hostname"
	KindNmap     Kind = "nmap"
)

// Options are the per-session settings shared by every tool.
type Options struct {
	// Interface binds the probe to a named network interface.
	Interface string
	// Checks is the repeat count passed to tools that support one.
	Checks int
	// Timeout is passed to the tool itself; zero leaves the tool default.
	Timeout time.Duration
}

// DefaultOptions returns a single check with the tool's own timeout.
func DefaultOptions() Options {
	return Options{Checks: 1}
}

func (o Options) validate() error {
	if o.Checks < 1 {
		return errors.ErrConfigInvalid("probes.checks", o.Checks)
	}
	if o.Timeout < 0 {
		return errors.ErrConfigInvalid("probes.timeout", o.Timeout)
	}
	return nil
}

// timeoutSeconds converts the timeout to whole seconds for tools that only
// accept integers, rounding up so a short timeout never becomes zero.
func (o Options) timeoutSeconds() int {
	if o.Timeout <= 0 {
		return 0
	}
	secs := int(o.Timeout / time.Second)
	if o.Timeout%time.Second != 0 {
		secs++
	}
	return secs
}

// Result is the outcome of one probe against one address.
type Result struct {
	// Success is the tool's own success signal.
	Success bool
	// Command is the exact invocation used.
	Command string
	// Stdout and Stderr hold the raw tool output.
	Stdout string
	Stderr string
	// Data is the parsed value: bool for ping, MAC string or nil for
	// arping and nmap, hostname string for hostname.
	Data any
	// Err is set when the probe could not be carried out as intended.
	Err error
}

// Failed builds the result recorded when a probe never produced one.
func Failed(kind Kind, addr netip.Addr, err error) Result {
	return Result{
		Success: false,
		Command: string(kind) + " " + addr.String(),
		Err:     err,
	}
}

// Reachable returns the reachability signal of a ping result.
func (r Result) Reachable() bool {
	v, _ := r.Data.(bool)
	return v && r.Success
}

// MAC returns the hardware address carried by an arping or nmap result.
func (r Result) MAC() (string, bool) {
	mac, ok := r.Data.(string)
	return mac, ok && mac != ""
}

// Hostname returns the name carried by a hostname result.
func (r Result) Hostname() (string, bool) {
	name, ok := r.Data.(string)
	return name, ok && name != ""
}

// ErrorString returns the error text or an empty string.
func (r Result) ErrorString() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}

// MarshalJSON renders Err as its message.
func (r Result) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Success bool   `json:"success"`
		Command string `json:"command"`
		Stdout  string `json:"stdout,omitempty"`
		Stderr  string `json:"stderr,omitempty"`
		Data    any    `json:"data"`
		Error   string `json:"error,omitempty"`
	}{r.Success, r.Command, r.Stdout, r.Stderr, r.Data, r.ErrorString()})
}

//go:generate mockgen -destination=../mocks/mock_probe.go -package=mocks github.com/anstrom/newhosts/internal/probe Prober,Runner

// Prober is implemented by every probe tool.
type Prober interface {
	// Kind returns the tool kind.
	Kind() Kind
	// Configure applies session options. It must be called before Probe
	// and never while probes are running.
	Configure(opts Options) error
	// Probe examines one address. Failures are reported in the Result.
	Probe(ctx context.Context, addr netip.Addr) Result
}

func commandLine(name string, args []string) string {
	return strings.Join(append([]string{name}, args...), " ")
}
