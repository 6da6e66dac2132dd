package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anstrom/newhosts/internal/db"
	"github.com/anstrom/newhosts/internal/probe"
)

// fakeRunner answers ping for the addresses in up and reports every other
// address as unreachable.
type fakeRunner struct {
	mu    sync.Mutex
	up    map[string]bool
	calls []string
}

func (f *fakeRunner) Run(_ context.Context, name string, args ...string) (probe.Output, error) {
	addr := args[len(args)-1]
	f.mu.Lock()
	f.calls = append(f.calls, name+" "+strings.Join(args, " "))
	f.mu.Unlock()
	if f.up[addr] {
		return probe.Output{Stdout: []byte("1 packets transmitted, 1 received")}, nil
	}
	return probe.Output{ExitCode: 1}, nil
}

type testEnv struct {
	dir        string
	configPath string
	dbPath     string
	runner     *fakeRunner
}

func newTestEnv(t *testing.T, up ...string) *testEnv {
	t.Helper()
	dir := t.TempDir()
	env := &testEnv{
		dir:        dir,
		configPath: filepath.Join(dir, "config.yaml"),
		dbPath:     filepath.Join(dir, "hosts.db"),
		runner:     &fakeRunner{up: make(map[string]bool)},
	}
	for _, addr := range up {
		env.runner.up[addr] = true
	}

	config := `database:
  driver: sqlite3
  path: ` + env.dbPath + `
probes:
  tools: [ping]
  checks: 1
logging:
  level: error
  output: stderr
`
	require.NoError(t, os.WriteFile(env.configPath, []byte(config), 0o600))

	previous := probeRunner
	probeRunner = env.runner
	t.Cleanup(func() {
		probeRunner = previous
		viper.Reset()
	})
	return env
}

// execute runs the CLI with a fresh command tree and returns stdout, stderr
// and the exit status.
func (e *testEnv) execute(args ...string) (string, string, int) {
	viper.Reset()
	root := newRootCmd()
	var stdout, stderr bytes.Buffer
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(append([]string{"--config", e.configPath}, args...))
	code := run(root, &stderr)
	return stdout.String(), stderr.String(), code
}

func (e *testEnv) seedHistory(t *testing.T, timestamp int64, rows map[string]string) {
	t.Helper()
	ctx := context.Background()
	database, err := db.Connect(ctx, &db.Config{Driver: db.DriverSQLite, Path: e.dbPath})
	require.NoError(t, err)
	defer database.Close()

	require.NoError(t, database.CreateSchema(ctx, true))
	for ip, mac := range rows {
		var macValue *string
		if mac != "" {
			macValue = &mac
		}
		_, err := database.ExecContext(ctx,
			`INSERT INTO detections (timestamp, ip, mac, hostname) VALUES (?, ?, ?, ?)`,
			timestamp, ip, macValue, ip)
		require.NoError(t, err)
	}
}

func lines(s string) []string {
	s = strings.TrimRight(s, "\n")
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}

func TestScanCommand(t *testing.T) {
	t.Run("reports every address of an ad hoc range", func(t *testing.T) {
		env := newTestEnv(t, "10.0.0.2")

		stdout, stderr, code := env.execute("scan", "10.0.0.1-10.0.0.3")
		require.Equal(t, 0, code, stderr)

		out := lines(stdout)
		require.Len(t, out, 3)
		assert.True(t, strings.HasPrefix(out[0], "  10.0.0.1 "))
		assert.True(t, strings.HasSuffix(out[0], "no ping reply"))
		assert.Equal(t, "  10.0.0.2", out[1])
		assert.True(t, strings.HasPrefix(out[2], "  10.0.0.3 "))
	})

	t.Run("stores one detection per address", func(t *testing.T) {
		env := newTestEnv(t, "10.0.0.2")

		_, stderr, code := env.execute("scan", "10.0.0.0/30")
		require.Equal(t, 0, code, stderr)

		stdout, stderr, code := env.execute("history", "-o", "json")
		require.Equal(t, 0, code, stderr)

		var entries []db.HistoryEntry
		require.NoError(t, json.Unmarshal([]byte(stdout), &entries))
		require.Len(t, entries, 1)
		assert.Equal(t, 2, entries[0].Hosts)
		assert.Zero(t, entries[0].WithMAC)
	})

	t.Run("compares with a recorded timestamp", func(t *testing.T) {
		env := newTestEnv(t, "10.0.0.1", "10.0.0.4")
		env.seedHistory(t, 1000, map[string]string{
			"10.0.0.1": "",
			"10.0.0.2": "aa:bb:cc:dd:ee:ff",
		})

		stdout, stderr, code := env.execute("scan", "10.0.0.1-10.0.0.4", "-T", "1000", "-O")
		require.Equal(t, 0, code, stderr)

		out := lines(stdout)
		require.Len(t, out, 2, stdout)
		assert.Equal(t, []string{"-", "10.0.0.2", "MAC", "lost", "(was", "aa:bb:cc:dd:ee:ff);", "no", "ping", "reply"},
			strings.Fields(out[0]))
		assert.Equal(t, []string{"+", "10.0.0.4", "new", "host"}, strings.Fields(out[1]))
	})

	t.Run("shows unchanged hosts without --changed", func(t *testing.T) {
		env := newTestEnv(t, "10.0.0.1")
		env.seedHistory(t, 1000, map[string]string{"10.0.0.1": ""})

		stdout, stderr, code := env.execute("scan", "10.0.0.1", "-T", "1000")
		require.Equal(t, 0, code, stderr)
		assert.Equal(t, []string{"=", "10.0.0.1"}, strings.Fields(stdout))
	})

	t.Run("writes json reports", func(t *testing.T) {
		env := newTestEnv(t, "192.168.1.10")

		stdout, stderr, code := env.execute("scan", "192.168.1.10", "-o", "json", "-n", "2", "-t", "1")
		require.Equal(t, 0, code, stderr)

		var report struct {
			Cycle   int `json:"cycle"`
			Entries []struct {
				Address string `json:"address"`
				Status  string `json:"status"`
			} `json:"entries"`
		}
		require.NoError(t, json.Unmarshal([]byte(stdout), &report))
		assert.Equal(t, 1, report.Cycle)
		require.Len(t, report.Entries, 1)
		assert.Equal(t, "192.168.1.10", report.Entries[0].Address)
		assert.Equal(t, "observed", report.Entries[0].Status)

		require.Len(t, env.runner.calls, 1)
		assert.Equal(t, "ping -c 2 -w 1 192.168.1.10", env.runner.calls[0])
	})

	t.Run("scans a saved network", func(t *testing.T) {
		env := newTestEnv(t, "172.16.0.1")

		stdout, stderr, code := env.execute("networks", "add", "lab", "172.16.0.1-172.16.0.2")
		require.Equal(t, 0, code, stderr)
		assert.Contains(t, stdout, "Saved network lab")

		stdout, stderr, code = env.execute("scan", "-C", "lab")
		require.Equal(t, 0, code, stderr)
		assert.Len(t, lines(stdout), 2)
	})
}

func TestScanCommandErrors(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		code    int
		message string
	}{
		{
			name:    "missing network",
			args:    []string{"scan"},
			code:    2,
			message: "network",
		},
		{
			name:    "invalid range",
			args:    []string{"scan", "10.0.0.9-10.0.0.1"},
			code:    2,
			message: "INVALID_RANGE",
		},
		{
			name:    "collect without watch",
			args:    []string{"scan", "10.0.0.1", "-c"},
			code:    2,
			message: "watch mode",
		},
		{
			name:    "unknown output format",
			args:    []string{"scan", "10.0.0.1", "-o", "xml"},
			code:    2,
			message: "output",
		},
		{
			name:    "unknown tool",
			args:    []string{"scan", "10.0.0.1", "--tools", "traceroute"},
			code:    2,
			message: "Tools",
		},
		{
			name:    "zero checks",
			args:    []string{"scan", "10.0.0.1", "-n", "0"},
			code:    2,
			message: "Checks",
		},
		{
			name:    "unknown saved network",
			args:    []string{"scan", "-C", "nowhere"},
			code:    2,
			message: "UNKNOWN_NETWORK",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)

			stdout, stderr, code := env.execute(tt.args...)
			assert.Equal(t, tt.code, code)
			assert.Empty(t, stdout)
			assert.Contains(t, stderr, tt.message)
			assert.Empty(t, env.runner.calls)
		})
	}

	t.Run("conflicting flags fail before opening the store", func(t *testing.T) {
		env := newTestEnv(t)

		_, _, code := env.execute("scan", "10.0.0.1", "--collect")
		assert.Equal(t, 2, code)
		_, err := os.Stat(env.dbPath)
		assert.True(t, os.IsNotExist(err))
	})
}

func TestNetworksCommand(t *testing.T) {
	env := newTestEnv(t)

	stdout, _, code := env.execute("networks", "list")
	assert.Equal(t, 1, code)
	assert.Contains(t, stdout, "No saved networks")

	_, stderr, code := env.execute("networks", "add", "home", "192.168.1.0/24")
	require.Equal(t, 0, code, stderr)
	_, stderr, code = env.execute("networks", "add", "lab", "10.0.0.1-10.0.0.50")
	require.Equal(t, 0, code, stderr)

	stdout, _, code = env.execute("networks", "list")
	assert.Equal(t, 1, code)
	assert.Contains(t, stdout, "home")
	assert.Contains(t, stdout, "192.168.1.1")
	assert.Contains(t, stdout, "192.168.1.254")
	assert.Contains(t, stdout, "10.0.0.50")

	// The scan command lists saved networks the same way.
	stdout, _, code = env.execute("scan", "-l")
	assert.Equal(t, 1, code)
	assert.Contains(t, stdout, "lab")

	_, stderr, code = env.execute("networks", "remove", "lab")
	require.Equal(t, 0, code, stderr)

	_, stderr, code = env.execute("networks", "remove", "lab")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, `network "lab" not found`)

	_, stderr, code = env.execute("networks", "add", "bad", "300.0.0.1")
	assert.Equal(t, 2, code)
	assert.NotEmpty(t, stderr)
}

func TestHistoryCommand(t *testing.T) {
	env := newTestEnv(t)

	stdout, stderr, code := env.execute("history")
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "No scans recorded")

	env.seedHistory(t, 1000, map[string]string{"10.0.0.1": "aa:bb:cc:dd:ee:ff", "10.0.0.2": ""})

	stdout, stderr, code = env.execute("history")
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "1000")
}

func TestSchemaCommand(t *testing.T) {
	env := newTestEnv(t)
	env.seedHistory(t, 1000, map[string]string{"10.0.0.1": ""})

	stdout, stderr, code := env.execute("schema")
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "Schema ready (sqlite3)")

	stdout, _, _ = env.execute("history", "-o", "json")
	assert.Contains(t, stdout, "1000")

	_, stderr, code = env.execute("schema", "--reset")
	require.Equal(t, 0, code, stderr)

	stdout, _, _ = env.execute("history")
	assert.Contains(t, stdout, "No scans recorded")
}
