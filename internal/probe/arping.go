package probe

import (
	"bufio"
	"context"
	"net/netip"
	"regexp"
	"strconv"
	"strings"
)

// macPattern matches six hex byte groups, colon separated or not.
var macPattern = regexp.MustCompile(`(?:[0-9a-fA-F]:?){12}`)

// ARPing resolves the hardware address of a neighbour with arping.
type ARPing struct {
	command string
	runner  Runner
	opts    Options
}

// NewARPing creates an arping prober that runs command through runner.
func NewARPing(command string, runner Runner) *ARPing {
	if command == "" {
		command = "arping"
	}
	if runner == nil {
		runner = ExecRunner{}
	}
	return &ARPing{command: command, runner: runner, opts: DefaultOptions()}
}

// Kind implements Prober.
func (a *ARPing) Kind() Kind { return KindARPing }

// Configure implements Prober.
func (a *ARPing) Configure(opts Options) error {
	if err := opts.validate(); err != nil {
		return err
	}
	a.opts = opts
	return nil
}

func (a *ARPing) args(addr netip.Addr) []string {
	args := []string{"-c", strconv.Itoa(a.opts.Checks)}
	if a.opts.Interface != "" {
		args = append(args, "-I", a.opts.Interface)
	}
	if secs := a.opts.timeoutSeconds(); secs > 0 {
		args = append(args, "-w", strconv.Itoa(secs))
	}
	return append(args, addr.String())
}

// Probe implements Prober. Data is the MAC address string, or nil when no
// reply from addr was seen.
func (a *ARPing) Probe(ctx context.Context, addr netip.Addr) Result {
	result, exitCode := runTool(ctx, a.runner, KindARPing, addr, a.command, a.args(addr))
	if exitCode > 1 {
		result.Err = exitError(KindARPing, addr, exitCode, result.Stderr)
	}

	if mac, ok := ParseARPingReply(result.Stdout, addr); ok {
		result.Success = true
		result.Data = mac
	}
	return result
}

// ParseARPingReply returns the first MAC address on the first line that
// reports a reply from addr.
func ParseARPingReply(output string, addr netip.Addr) (string, bool) {
	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.Contains(line, "reply from") || !lineMentions(line, addr) {
			continue
		}
		if mac := macPattern.FindString(line); mac != "" {
			return mac, true
		}
	}
	return "", false
}

// lineMentions reports whether addr appears in line as a whole token, so
// 10.0.0.1 does not match a reply from 10.0.0.10.
func lineMentions(line string, addr netip.Addr) bool {
	want := addr.String()
	tokens := strings.FieldsFunc(line, func(r rune) bool {
		return r != '.' && (r < '0' || r > '9')
	})
	for _, tok := range tokens {
		if tok == want {
			return true
		}
	}
	return false
}
