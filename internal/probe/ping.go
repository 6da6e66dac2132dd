package probe

import (
	"context"
	"net/netip"
	"strconv"
)

// Ping checks reachability with the system ping tool. The exit status is
// the signal: zero means at least one reply arrived.
type Ping struct {
	command string
	runner  Runner
	opts    Options
}

// NewPing creates a ping prober that runs command through runner.
func NewPing(command string, runner Runner) *Ping {
	if command == "" {
		command = "ping"
	}
	if runner == nil {
		runner = ExecRunner{}
	}
	return &Ping{command: command, runner: runner, opts: DefaultOptions()}
}

// Kind implements Prober.
func (p *Ping) Kind() Kind { return KindPing }

// Configure implements Prober.
func (p *Ping) Configure(opts Options) error {
	if err := opts.validate(); err != nil {
		return err
	}
	p.opts = opts
	return nil
}

func (p *Ping) args(addr netip.Addr) []string {
	args := []string{"-c", strconv.Itoa(p.opts.Checks)}
	if p.opts.Interface != "" {
		args = append(args, "-I", p.opts.Interface)
	}
	if secs := p.opts.timeoutSeconds(); secs > 0 {
		args = append(args, "-w", strconv.Itoa(secs))
	}
	return append(args, addr.String())
}

// Probe implements Prober.
func (p *Ping) Probe(ctx context.Context, addr netip.Addr) Result {
	result, exitCode := runTool(ctx, p.runner, KindPing, addr, p.command, p.args(addr))
	switch {
	case exitCode == 0:
		result.Success = true
	case exitCode > 1:
		result.Err = exitError(KindPing, addr, exitCode, result.Stderr)
	}
	result.Data = result.Success
	return result
}
