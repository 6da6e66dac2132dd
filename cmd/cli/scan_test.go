package cli

import (
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anstrom/newhosts/internal/config"
	"github.com/anstrom/newhosts/internal/errors"
)

func TestScanWatchOptions(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		collect  bool
		watch    bool
		interval time.Duration
		schedule string
		compare  bool
		ts       int64
		wantCol  bool
	}{
		{
			name: "single cycle",
		},
		{
			name:     "watch seconds",
			args:     []string{"-w", "30"},
			watch:    true,
			interval: 30 * time.Second,
		},
		{
			name:     "cron schedule",
			args:     []string{"--schedule", "*/5 * * * *"},
			watch:    true,
			interval: time.Minute,
			schedule: "*/5 * * * *",
		},
		{
			name:     "collect flag",
			args:     []string{"-w", "10", "-c"},
			watch:    true,
			interval: 10 * time.Second,
			wantCol:  true,
		},
		{
			name:     "configured collect in watch mode",
			args:     []string{"-w", "10"},
			collect:  true,
			watch:    true,
			interval: 10 * time.Second,
			wantCol:  true,
		},
		{
			name:    "configured collect ignored without watch",
			collect: true,
		},
		{
			name:    "compare timestamp",
			args:    []string{"-T", "1718000000"},
			compare: true,
			ts:      1718000000,
		},
		{
			name:    "compare with timestamp zero",
			args:    []string{"--timestamp", "0"},
			compare: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			viper.Reset()
			opts := &scanOptions{}
			cmd := scanCommand(opts)
			require.NoError(t, cmd.ParseFlags(tt.args))

			cfg := config.Default()
			cfg.Watch.Collect = tt.collect

			got := opts.watchOptions(cmd.Flags(), cfg)
			assert.Equal(t, tt.watch, got.Watch)
			if tt.watch {
				assert.Equal(t, tt.interval, got.Interval)
			}
			assert.Equal(t, tt.schedule, got.Schedule)
			assert.Equal(t, tt.wantCol, got.Collect)
			assert.Equal(t, tt.compare, got.Compare)
			assert.Equal(t, tt.ts, got.CompareTimestamp)
		})
	}
}

func TestScanApply(t *testing.T) {
	t.Cleanup(viper.Reset)

	t.Run("copies changed flags onto the configuration", func(t *testing.T) {
		viper.Reset()
		opts := &scanOptions{}
		cmd := scanCommand(opts)
		require.NoError(t, cmd.ParseFlags([]string{
			"-I", "eth1", "-n", "3", "-t", "2", "--tools", "arping,nmap", "--metrics", "--metrics-listen", "127.0.0.1:9200",
		}))

		cfg := config.Default()
		require.NoError(t, opts.apply(cmd.Flags(), cfg))
		assert.Equal(t, "eth1", cfg.Probes.Interface)
		assert.Equal(t, 3, cfg.Probes.Checks)
		assert.Equal(t, 2*time.Second, cfg.Probes.Timeout)
		assert.Equal(t, []string{"arping", "nmap"}, cfg.Probes.Tools)
		assert.True(t, cfg.Metrics.Enabled)
		assert.Equal(t, "127.0.0.1:9200", cfg.Metrics.ListenAddr)
		assert.False(t, cfg.Watch.ChangedOnly)
		assert.Equal(t, 3*2*time.Second+cfg.Probes.Grace, cfg.Probes.Deadline())
	})

	t.Run("keeps the configuration when flags are absent", func(t *testing.T) {
		viper.Reset()
		opts := &scanOptions{}
		cmd := scanCommand(opts)
		require.NoError(t, cmd.ParseFlags(nil))

		cfg := config.Default()
		require.NoError(t, opts.apply(cmd.Flags(), cfg))
		assert.Equal(t, config.Default().Probes, cfg.Probes)
	})

	t.Run("rejects a zero worker count", func(t *testing.T) {
		viper.Reset()
		opts := &scanOptions{}
		cmd := scanCommand(opts)
		require.NoError(t, cmd.ParseFlags([]string{"-W", "0"}))

		err := opts.apply(cmd.Flags(), config.Default())
		require.Error(t, err)
		assert.True(t, errors.IsCode(err, errors.CodeValidation))
	})
}

func TestScanApplyEnvironment(t *testing.T) {
	t.Cleanup(viper.Reset)

	setup := func(t *testing.T) {
		t.Helper()
		viper.Reset()
		viper.SetEnvPrefix(envPrefix)
		viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
		viper.AutomaticEnv()
	}

	t.Run("environment overrides the configuration", func(t *testing.T) {
		setup(t)
		t.Setenv("NEWHOSTS_PROBES_INTERFACE", "wlan0")
		t.Setenv("NEWHOSTS_PROBES_CHECKS", "4")
		t.Setenv("NEWHOSTS_PROBES_TOOLS", "arping, nmap")
		t.Setenv("NEWHOSTS_WATCH_CHANGED_ONLY", "true")
		t.Setenv("NEWHOSTS_METRICS_ENABLED", "true")
		t.Setenv("NEWHOSTS_METRICS_LISTEN_ADDR", "127.0.0.1:9300")

		opts := &scanOptions{}
		cmd := scanCommand(opts)
		require.NoError(t, cmd.ParseFlags(nil))

		cfg := config.Default()
		require.NoError(t, opts.apply(cmd.Flags(), cfg))
		assert.Equal(t, "wlan0", cfg.Probes.Interface)
		assert.Equal(t, 4, cfg.Probes.Checks)
		assert.Equal(t, []string{"arping", "nmap"}, cfg.Probes.Tools)
		assert.True(t, cfg.Watch.ChangedOnly)
		assert.True(t, cfg.Metrics.Enabled)
		assert.Equal(t, "127.0.0.1:9300", cfg.Metrics.ListenAddr)
	})

	t.Run("flags win over the environment", func(t *testing.T) {
		setup(t)
		t.Setenv("NEWHOSTS_PROBES_INTERFACE", "wlan0")
		t.Setenv("NEWHOSTS_PROBES_TOOLS", "hostname")

		opts := &scanOptions{}
		cmd := scanCommand(opts)
		require.NoError(t, cmd.ParseFlags([]string{"-I", "eth1", "--tools", "ping"}))

		cfg := config.Default()
		require.NoError(t, opts.apply(cmd.Flags(), cfg))
		assert.Equal(t, "eth1", cfg.Probes.Interface)
		assert.Equal(t, []string{"ping"}, cfg.Probes.Tools)
	})

	t.Run("invalid environment value fails validation", func(t *testing.T) {
		setup(t)
		t.Setenv("NEWHOSTS_PROBES_TOOLS", "traceroute")

		opts := &scanOptions{}
		cmd := scanCommand(opts)
		require.NoError(t, cmd.ParseFlags(nil))

		err := opts.apply(cmd.Flags(), config.Default())
		require.Error(t, err)
		assert.True(t, errors.IsConfigError(err))
	})
}
