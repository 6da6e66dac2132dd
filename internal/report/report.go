// Package report renders cycle reports for the terminal.
//
// A text report prints one line per address:
//
//	<status> <address:20><mac:20><hostname:30><message>
//
// where status is one of the watch status symbols.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/anstrom/newhosts/internal/discovery"
	"github.com/anstrom/newhosts/internal/errors"
	"github.com/anstrom/newhosts/internal/probe"
	"github.com/anstrom/newhosts/internal/watch"
)

// Format selects the report encoding.
type Format string

// Supported formats.
const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(s)) {
	case FormatText, "":
		return FormatText, nil
	case FormatJSON:
		return FormatJSON, nil
	}
	return "", errors.ErrConfigInvalid("output", s)
}

// Options control what a Writer prints.
type Options struct {
	Format Format
	// All adds the state of every tool to the message column.
	All bool
	// ChangedOnly hides unchanged addresses.
	ChangedOnly bool
	// Header prints a separator line before each cycle.
	Header bool
}

// Writer prints cycle reports. It is safe for concurrent use.
type Writer struct {
	mu   sync.Mutex
	out  io.Writer
	opts Options
}

// NewWriter creates a report writer.
func NewWriter(out io.Writer, opts Options) *Writer {
	if opts.Format == "" {
		opts.Format = FormatText
	}
	return &Writer{out: out, opts: opts}
}

// WriteCycle prints one cycle report.
func (w *Writer) WriteCycle(r watch.Report) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	entries := r.Entries
	if w.opts.ChangedOnly {
		entries = make([]watch.Entry, 0, len(r.Entries))
		for _, e := range r.Entries {
			if e.Status != watch.StatusUnchanged {
				entries = append(entries, e)
			}
		}
	}

	if w.opts.Format == FormatJSON {
		r.Entries = entries
		enc := json.NewEncoder(w.out)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	}

	if w.opts.Header {
		if _, err := fmt.Fprintln(w.out, header(r)); err != nil {
			return err
		}
	}
	for _, e := range entries {
		if _, err := fmt.Fprintln(w.out, formatLine(e, w.opts.All)); err != nil {
			return err
		}
	}
	return nil
}

func header(r watch.Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# cycle %d", r.Number)
	if r.View != nil {
		fmt.Fprintf(&b, " %s (%s)", r.View.Network, r.View.Range)
		fmt.Fprintf(&b, " at %s", time.Unix(r.View.Timestamp, 0).Format(time.DateTime))
	}
	if r.Compared {
		fmt.Fprintf(&b, ", compared with %d", r.CompareTimestamp)
	}
	return b.String()
}

// FormatLine renders one entry as a report line.
func FormatLine(e watch.Entry) string {
	return formatLine(e, false)
}

func formatLine(e watch.Entry, all bool) string {
	hostname, _ := e.Host.ResolvedHostname()
	line := fmt.Sprintf("%s %-20s%-20s%-30s%s",
		e.Status.Symbol(), e.Address, e.MAC(), hostname, Message(e, all))
	return strings.TrimRight(line, " ")
}

var toolOrder = []probe.Kind{probe.KindPing, probe.KindARPing, probe.KindHostname, probe.KindNmap}

// Message joins the status message with notes about the probes. Failures
// are always noted; with all set, successful probes are noted too.
func Message(e watch.Entry, all bool) string {
	var parts []string
	if e.Message != "" {
		parts = append(parts, e.Message)
	}
	for _, kind := range toolOrder {
		r, ok := e.Host.Results[kind]
		if !ok {
			continue
		}
		if note := probeNote(kind, r, all); note != "" {
			parts = append(parts, note)
		}
	}
	return strings.Join(parts, "; ")
}

func probeNote(kind probe.Kind, r probe.Result, all bool) string {
	if r.Err != nil {
		return fmt.Sprintf("%s error (%s)", kind, errors.GetCode(r.Err))
	}

	switch kind {
	case probe.KindPing:
		if !r.Reachable() {
			return "no ping reply"
		}
		if all {
			return "ping ok"
		}
	case probe.KindARPing:
		if all {
			if _, ok := r.MAC(); ok {
				return "arp ok"
			}
			return "no arp reply"
		}
	case probe.KindHostname:
		if all && !r.Success {
			return "unresolved"
		}
	case probe.KindNmap:
		if !r.Success {
			return "nmap down"
		}
		if all {
			return "nmap up"
		}
	}
	return ""
}

// Summary counts the entries of a report per status.
func Summary(entries []watch.Entry) map[watch.Status]int {
	counts := make(map[watch.Status]int)
	for _, e := range entries {
		counts[e.Status]++
	}
	return counts
}

// Observed builds a report for a cycle that was not compared with history.
func Observed(cycle *discovery.CycleResult) watch.Report {
	return watch.Report{
		Number:  1,
		Cycle:   cycle,
		View:    cycle,
		Entries: watch.Classify(nil, cycle),
	}
}
