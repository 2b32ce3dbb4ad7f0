package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"energyEngine/internal/adapters/logger"
	"energyEngine/internal/engine"
	"energyEngine/internal/policy"
	"energyEngine/internal/risk"
	"energyEngine/internal/strategy/entry"
)

func writeProfile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "profile.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "ETHUSDT", cfg.Symbol)
	assert.Equal(t, "1m", cfg.Interval)
	assert.Equal(t, engine.DefaultConfig(), cfg.Engine)
	assert.Equal(t, risk.DefaultConfig(), cfg.Risk)
	assert.Equal(t, entry.STBDetectorName, cfg.Strategy.Detector)
	assert.Equal(t, policy.ThresholdPolicyName, cfg.Strategy.Policy)
	assert.Equal(t, entry.DefaultSTBConfig(), cfg.Strategy.STB)
	assert.True(t, cfg.Strategy.ExitOnActivationBar)
	assert.Equal(t, logger.LevelInfo, cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, 5*time.Second, cfg.ReconnectDelay)
	assert.Equal(t, 10, cfg.MaxReconnectAttempts)
	assert.Equal(t, 500, cfg.WarmupBars)
	assert.Empty(t, cfg.APIKey, "keys are optional")
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("MFE_ACTIVATION_THRESHOLD", "9")
	t.Setenv("DEFENSE_ENABLED", "false")
	t.Setenv("EXIT_ON_ACTIVATION_BAR", "false")
	t.Setenv("EXIT_POLICY", policy.AccumulatorPolicyName)
	t.Setenv("ACC_MAX_SESSION_BARS", "45")
	t.Setenv("ENTRY_DETECTOR", entry.TrendDetectorName)
	t.Setenv("TREND_SHORT_MA_PERIOD", "10")
	t.Setenv("MAX_OPEN_SESSIONS", "0")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "JSON")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 9.0, cfg.Engine.MFEActivationThreshold)
	assert.False(t, cfg.Engine.DefenseEnabled)
	assert.False(t, cfg.Strategy.ExitOnActivationBar)
	assert.Equal(t, policy.AccumulatorPolicyName, cfg.Strategy.Policy)
	assert.Equal(t, 45, cfg.Strategy.Accumulator.MaxSessionBars)
	assert.Equal(t, entry.TrendDetectorName, cfg.Strategy.Detector)
	assert.Equal(t, 10, cfg.Strategy.Trend.ShortTermMAPeriod)
	assert.Equal(t, 0, cfg.Risk.MaxOpenSessions)
	assert.Equal(t, logger.LevelDebug, cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
}

func TestLoadConfig_ProfileThenEnv(t *testing.T) {
	path := writeProfile(t, `
engine:
  trail_offset: 2
  default_stop_distance: 40
accumulator:
  tau_min: 7
risk:
  cooldown_bars: 3
`)
	t.Setenv("ENGINE_PROFILE", path)
	t.Setenv("DEFAULT_STOP_DISTANCE", "35")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 2.0, cfg.Engine.TrailOffset, "from profile")
	assert.Equal(t, 35.0, cfg.Engine.DefaultStopDistance, "env wins over profile")
	assert.Equal(t, 7.0, cfg.Engine.MFEActivationThreshold, "untouched default")
	assert.Equal(t, 7, cfg.Strategy.Accumulator.TauMin)
	assert.Equal(t, 3, cfg.Risk.CooldownBars)
	assert.Equal(t, 1, cfg.Risk.MaxOpenSessions)
}

func TestLoadConfig_ValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr []string
	}{
		{
			name:    "unparseable numbers are all reported",
			env:     map[string]string{"TRAIL_OFFSET": "abc", "DEFENSE_TRIGGER_BARS": "1.5"},
			wantErr: []string{"invalid TRAIL_OFFSET", "invalid DEFENSE_TRIGGER_BARS"},
		},
		{
			name:    "engine relationships",
			env:     map[string]string{"DEFENSE_STOP_DISTANCE": "40"},
			wantErr: []string{"DefenseStopDistance (40) must be smaller than DefaultStopDistance (30)"},
		},
		{
			name:    "unknown policy",
			env:     map[string]string{"EXIT_POLICY": "martingale"},
			wantErr: []string{`EXIT_POLICY must be one of`, `"martingale"`},
		},
		{
			name:    "unknown detector",
			env:     map[string]string{"ENTRY_DETECTOR": "coinflip"},
			wantErr: []string{"ENTRY_DETECTOR must be one of"},
		},
		{
			name:    "trend periods",
			env:     map[string]string{"ENTRY_DETECTOR": "trend", "TREND_SHORT_MA_PERIOD": "60"},
			wantErr: []string{"TREND_SHORT_MA_PERIOD must be less than TREND_LONG_MA_PERIOD"},
		},
		{
			name:    "crossover thresholds",
			env:     map[string]string{"ENTRY_DETECTOR": "ma_crossover", "CROSS_FAST_MA_PERIOD": "30"},
			wantErr: []string{"FastMAPeriod must be less than SlowMAPeriod"},
		},
		{
			name:    "stb thresholds",
			env:     map[string]string{"STB_LONG_RATIO": "2"},
			wantErr: []string{"LongRatio must be below ShortRatio"},
		},
		{
			name:    "accumulator thresholds only when selected",
			env:     map[string]string{"EXIT_POLICY": "accumulator", "ACC_MAX_SESSION_BARS": "0"},
			wantErr: []string{"MaxSessionBars must be positive"},
		},
		{
			name:    "negative gate",
			env:     map[string]string{"MAX_DAILY_TRADES": "-1"},
			wantErr: []string{"entry gate limits cannot be negative"},
		},
		{
			name:    "log format",
			env:     map[string]string{"LOG_FORMAT": "xml"},
			wantErr: []string{"LOG_FORMAT must be text or json"},
		},
		{
			name:    "missing profile",
			env:     map[string]string{"ENGINE_PROFILE": "/nonexistent/profile.yaml"},
			wantErr: []string{"reading engine profile"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := LoadConfig()
			require.Error(t, err)
			assert.Contains(t, err.Error(), "configuration validation failed")
			for _, want := range tt.wantErr {
				assert.Contains(t, err.Error(), want)
			}
		})
	}
}

func TestLoadConfig_AccumulatorIgnoredWhenNotSelected(t *testing.T) {
	t.Setenv("ACC_MAX_SESSION_BARS", "0")
	_, err := LoadConfig()
	assert.NoError(t, err)
}

func TestLoadEngineProfile(t *testing.T) {
	t.Run("unknown key", func(t *testing.T) {
		p := DefaultProfile()
		err := LoadEngineProfile(writeProfile(t, "engine:\n  trail_ofset: 2\n"), &p)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "trail_ofset")
	})

	t.Run("empty file keeps defaults", func(t *testing.T) {
		p := DefaultProfile()
		require.NoError(t, LoadEngineProfile(writeProfile(t, ""), &p))
		assert.Equal(t, DefaultProfile(), p)
	})

	t.Run("partial section", func(t *testing.T) {
		p := DefaultProfile()
		require.NoError(t, LoadEngineProfile(writeProfile(t, "signals:\n  atr_period: 14\nstb:\n  body_z_min: 1.5\n"), &p))
		assert.Equal(t, 14, p.Signals.ATRPeriod)
		assert.Equal(t, 20, p.Signals.ChannelBars)
		assert.Equal(t, 1.5, p.STB.BodyZMin)
		assert.Equal(t, engine.DefaultConfig(), p.Engine)
	})
}
