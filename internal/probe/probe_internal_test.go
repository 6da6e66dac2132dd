package probe

import (
	"context"
	"errors"
	"net"
	"net/netip"
	"testing"
	"time"

	"github.com/Ullaakut/nmap/v3"
	"github.com/miekg/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anstrom/newhosts/internal/config"
	apperrors "github.com/anstrom/newhosts/internal/errors"
)

func TestParseARPingReply(t *testing.T) {
	tests := []struct {
		name    string
		output  string
		addr    string
		wantMAC string
		wantOK  bool
	}{
		{
			name: "iputils unicast reply",
			output: "ARPING 10.0.0.1 from 10.0.0.50 eth0\n" +
				"Unicast reply from 10.0.0.1 [AA:BB:CC:DD:EE:FF]  0.720ms\n" +
				"Sent 1 probes (1 broadcast(s))\nReceived 1 response(s)\n",
			addr:    "10.0.0.1",
			wantMAC: "AA:BB:CC:DD:EE:FF",
			wantOK:  true,
		},
		{
			name:    "habets style reply",
			output:  "60 bytes from 00:11:22:33:44:55 (10.0.0.7): index=0 time=1.2 msec reply from 10.0.0.7\n",
			addr:    "10.0.0.7",
			wantMAC: "00:11:22:33:44:55",
			wantOK:  true,
		},
		{
			name:    "unseparated MAC",
			output:  "Unicast reply from 192.168.1.20 [001122AABBCC] 1.1ms\n",
			addr:    "192.168.1.20",
			wantMAC: "001122AABBCC",
			wantOK:  true,
		},
		{
			name: "first matching line wins",
			output: "Unicast reply from 10.0.0.2 [AA:AA:AA:AA:AA:AA] 0.5ms\n" +
				"Unicast reply from 10.0.0.2 [BB:BB:BB:BB:BB:BB] 0.6ms\n",
			addr:    "10.0.0.2",
			wantMAC: "AA:AA:AA:AA:AA:AA",
			wantOK:  true,
		},
		{
			name:   "reply from a longer address",
			output: "Unicast reply from 10.0.0.10 [AA:BB:CC:DD:EE:FF] 0.7ms\n",
			addr:   "10.0.0.1",
		},
		{
			name:   "no reply",
			output: "ARPING 10.0.0.3 from 10.0.0.50 eth0\nSent 1 probes (1 broadcast(s))\nReceived 0 response(s)\n",
			addr:   "10.0.0.3",
		},
		{
			name:   "empty output",
			output: "",
			addr:   "10.0.0.3",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mac, ok := ParseARPingReply(tt.output, netip.MustParseAddr(tt.addr))
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantMAC, mac)
		})
	}
}

func TestToolArguments(t *testing.T) {
	addr := netip.MustParseAddr("10.0.0.1")

	tests := []struct {
		name string
		opts Options
		want []string
	}{
		{"defaults", DefaultOptions(), []string{"-c", "1", "10.0.0.1"}},
		{"interface", Options{Checks: 2, Interface: "eth0"}, []string{"-c", "2", "-I", "eth0", "10.0.0.1"}},
		{"timeout rounds up", Options{Checks: 1, Timeout: 1500 * time.Millisecond}, []string{"-c", "1", "-w", "2", "10.0.0.1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ping := NewPing("", nil)
			require.NoError(t, ping.Configure(tt.opts))
			assert.Equal(t, tt.want, ping.args(addr))

			arping := NewARPing("", nil)
			require.NoError(t, arping.Configure(tt.opts))
			assert.Equal(t, tt.want, arping.args(addr))
		})
	}
}

func TestConfigureRejectsInvalidOptions(t *testing.T) {
	for _, p := range []Prober{NewPing("", nil), NewARPing("", nil), NewHostname(""), NewNmap("")} {
		t.Run(string(p.Kind()), func(t *testing.T) {
			assert.True(t, apperrors.IsConfigError(p.Configure(Options{Checks: 0})))
			assert.True(t, apperrors.IsConfigError(p.Configure(Options{Checks: 1, Timeout: -time.Second})))
		})
	}
}

func TestApplyNmapRun(t *testing.T) {
	addr := netip.MustParseAddr("10.0.0.1")

	t.Run("host up with MAC", func(t *testing.T) {
		run := &nmap.Run{Hosts: []nmap.Host{{
			Addresses: []nmap.Address{
				{Addr: "10.0.0.1", AddrType: "ipv4"},
				{Addr: "AA:BB:CC:DD:EE:FF", AddrType: "mac", Vendor: "Acme"},
			},
			Status: nmap.Status{State: "up", Reason: "arp-response"},
		}}}

		var r Result
		applyNmapRun(&r, run, addr)
		assert.True(t, r.Success)
		assert.Equal(t, "AA:BB:CC:DD:EE:FF", r.Data)
		assert.Equal(t, "up (arp-response)", r.Stdout)
	})

	t.Run("host up without MAC", func(t *testing.T) {
		run := &nmap.Run{Hosts: []nmap.Host{{
			Addresses: []nmap.Address{{Addr: "10.0.0.1", AddrType: "ipv4"}},
			Status:    nmap.Status{State: "up", Reason: "echo-reply"},
		}}}

		var r Result
		applyNmapRun(&r, run, addr)
		assert.True(t, r.Success)
		_, ok := r.MAC()
		assert.False(t, ok)
	})

	t.Run("other host or down", func(t *testing.T) {
		run := &nmap.Run{Hosts: []nmap.Host{
			{Addresses: []nmap.Address{{Addr: "10.0.0.10", AddrType: "ipv4"}}, Status: nmap.Status{State: "up"}},
			{Addresses: []nmap.Address{{Addr: "10.0.0.1", AddrType: "ipv4"}}, Status: nmap.Status{State: "down", Reason: "no-response"}},
		}}

		var r Result
		applyNmapRun(&r, run, addr)
		assert.False(t, r.Success)
		assert.Nil(t, r.Data)
	})

	t.Run("nil run", func(t *testing.T) {
		var r Result
		applyNmapRun(&r, nil, addr)
		assert.False(t, r.Success)
	})
}

func TestNmapCommandLine(t *testing.T) {
	n := NewNmap("")
	require.NoError(t, n.Configure(Options{Checks: 1, Interface: "wlan0"}))
	assert.Equal(t, "nmap -sn -e wlan0 10.0.0.1", n.commandLine(netip.MustParseAddr("10.0.0.1")))
	assert.Len(t, n.options(netip.MustParseAddr("10.0.0.1")), 6)
}

// startDNS serves PTR answers from names on a loopback UDP socket.
func startDNS(t *testing.T, names map[string]string) string {
	t.Helper()

	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)

	started := make(chan struct{})
	server := &dns.Server{
		PacketConn:        pc,
		NotifyStartedFunc: func() { close(started) },
		Handler: dns.HandlerFunc(func(w dns.ResponseWriter, req *dns.Msg) {
			m := new(dns.Msg)
			m.SetReply(req)
			q := req.Question[0]
			if name, ok := names[q.Name]; ok && q.Qtype == dns.TypePTR {
				m.Answer = append(m.Answer, &dns.PTR{
					Hdr: dns.RR_Header{Name: q.Name, Rrtype: dns.TypePTR, Class: dns.ClassINET, Ttl: 60},
					Ptr: dns.Fqdn(name),
				})
			} else {
				m.Rcode = dns.RcodeNameError
			}
			_ = w.WriteMsg(m)
		}),
	}
	go func() { _ = server.ActivateAndServe() }()
	t.Cleanup(func() { _ = server.Shutdown() })

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("DNS server did not start")
	}
	return pc.LocalAddr().String()
}

func TestHostnameProbe(t *testing.T) {
	resolver := startDNS(t, map[string]string{"9.0.0.10.in-addr.arpa.": "printer.local"})

	fallback := func(_ context.Context, addr string) ([]string, error) {
		if addr == "10.0.0.20" {
			return []string{"nas.lan."}, nil
		}
		return nil, &net.DNSError{Err: "no such host", Name: addr, IsNotFound: true}
	}

	newProber := func() *Hostname {
		h := NewHostname(resolver)
		h.lookupAddr = fallback
		require.NoError(t, h.Configure(Options{Checks: 1, Timeout: time.Second}))
		return h
	}

	t.Run("PTR answer", func(t *testing.T) {
		r := newProber().Probe(context.Background(), netip.MustParseAddr("10.0.0.9"))
		assert.True(t, r.Success)
		assert.Equal(t, "printer.local", r.Data)
		assert.Equal(t, "dig -x 10.0.0.9 @"+resolver, r.Command)
		assert.NoError(t, r.Err)
	})

	t.Run("system resolver fallback", func(t *testing.T) {
		r := newProber().Probe(context.Background(), netip.MustParseAddr("10.0.0.20"))
		assert.True(t, r.Success)
		assert.Equal(t, "nas.lan", r.Data)
	})

	t.Run("unresolved echoes the address", func(t *testing.T) {
		r := newProber().Probe(context.Background(), netip.MustParseAddr("10.0.0.30"))
		assert.False(t, r.Success)
		assert.Equal(t, "10.0.0.30", r.Data)
		assert.NoError(t, r.Err)
		assert.NotEmpty(t, r.Stderr)
	})

	t.Run("canceled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		h := newProber()
		h.lookupAddr = func(ctx context.Context, _ string) ([]string, error) { return nil, ctx.Err() }

		r := h.Probe(ctx, netip.MustParseAddr("10.0.0.9"))
		assert.False(t, r.Success)
		assert.True(t, apperrors.IsCode(r.Err, apperrors.CodeCanceled))
	})

	t.Run("no resolver configured", func(t *testing.T) {
		h := NewHostname("")
		h.lookupAddr = fallback
		r := h.Probe(context.Background(), netip.MustParseAddr("10.0.0.20"))
		assert.Equal(t, "getent hosts 10.0.0.20", r.Command)
		assert.Equal(t, "nas.lan", r.Data)
	})
}

func TestExecRunner(t *testing.T) {
	t.Run("exit status is not an error", func(t *testing.T) {
		out, err := ExecRunner{}.Run(context.Background(), "sh", "-c", "echo hi; exit 1")
		require.NoError(t, err)
		assert.Equal(t, 1, out.ExitCode)
		assert.Equal(t, "hi\n", string(out.Stdout))
	})

	t.Run("missing binary", func(t *testing.T) {
		p := NewPing("newhosts-no-such-ping", nil)
		r := p.Probe(context.Background(), netip.MustParseAddr("10.0.0.1"))
		assert.False(t, r.Success)
		assert.True(t, apperrors.IsCode(r.Err, apperrors.CodeToolMissing), "got %v", r.Err)
	})

	t.Run("deadline kills the process", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		start := time.Now()
		_, err := ExecRunner{}.Run(ctx, "sleep", "10")
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Less(t, time.Since(start), 5*time.Second)
	})
}

func TestResultHelpers(t *testing.T) {
	addr := netip.MustParseAddr("10.0.0.1")
	failed := Failed(KindARPing, addr, errors.New("boom"))
	assert.False(t, failed.Success)
	assert.Equal(t, "arping 10.0.0.1", failed.Command)
	assert.Equal(t, "boom", failed.ErrorString())

	assert.True(t, Result{Success: true, Data: true}.Reachable())
	assert.False(t, Result{Success: false, Data: true}.Reachable())
	_, ok := Result{Data: ""}.MAC()
	assert.False(t, ok)
	_, ok = Result{}.Hostname()
	assert.False(t, ok)
}

func TestBuild(t *testing.T) {
	t.Run("default tools in order", func(t *testing.T) {
		set, err := Build(config.Default().Probes, nil)
		require.NoError(t, err)
		assert.Equal(t, []Kind{KindPing, KindARPing, KindHostname}, set.Kinds())
		assert.Equal(t, 20, set.Workers[KindPing])
		assert.Equal(t, 10, set.Workers[KindARPing])
		assert.True(t, set.Has(KindHostname))
		assert.False(t, set.Has(KindNmap))
	})

	t.Run("options reach every prober", func(t *testing.T) {
		cfg := config.Default().Probes
		cfg.Tools = []string{"nmap", "ping"}
		cfg.Interface = "eth1"
		cfg.Checks = 3
		set, err := Build(cfg, nil)
		require.NoError(t, err)
		assert.Equal(t, []Kind{KindNmap, KindPing}, set.Kinds())
		assert.Equal(t, "eth1", set.Probers[1].(*Ping).opts.Interface)
		assert.Equal(t, 3, set.Probers[0].(*Nmap).opts.Checks)
	})

	t.Run("errors", func(t *testing.T) {
		for name, tools := range map[string][]string{
			"unknown":   {"ping", "traceroute"},
			"duplicate": {"arping", "arping"},
			"empty":     {},
		} {
			cfg := config.Default().Probes
			cfg.Tools = tools
			_, err := Build(cfg, nil)
			assert.True(t, apperrors.IsConfigError(err), name)
		}
	})
}
