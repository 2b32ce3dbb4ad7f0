package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"energyEngine/internal/adapters/logger" // Import the logger package for LogLevel
	"energyEngine/internal/engine"
	"energyEngine/internal/policy"
	"energyEngine/internal/risk"
	"energyEngine/internal/signals"
	"energyEngine/internal/strategy/entry"
	"energyEngine/internal/strategy/strategies"
)

// Config holds all application configuration.
type Config struct {
	// Binance API. Only public kline endpoints are used, so keys are optional.
	APIKey    string
	SecretKey string
	IsTestnet bool

	// Market data
	Symbol     string
	Interval   string
	BarsFile   string // CSV feed for backtests
	DataDir    string // Output directory for exports
	WarmupBars int    // Bars fetched before a paper run starts streaming

	// Engine and strategy
	EngineProfile string // Optional YAML profile applied before env overrides
	Engine        engine.Config
	Strategy      strategies.Options
	Risk          risk.Config

	// Database
	DBPath string

	// Logging
	LogLevel  logger.LogLevel // Use the LogLevel type from the logger adapter
	LogFormat string          // "text" or "json"

	// Connection Settings
	ReconnectDelay       time.Duration
	MaxReconnectAttempts int
}

// Profile is the YAML layout of an engine profile. Keys left out keep their defaults.
type Profile struct {
	Engine      engine.Config            `yaml:"engine"`
	Accumulator policy.AccumulatorConfig `yaml:"accumulator"`
	Signals     signals.Config           `yaml:"signals"`
	STB         entry.STBConfig          `yaml:"stb"`
	Trend       entry.TrendConfig        `yaml:"trend"`
	Crossover   entry.CrossoverConfig    `yaml:"crossover"`
	Risk        risk.Config              `yaml:"risk"`
}

// DefaultProfile returns the production constants and research defaults.
func DefaultProfile() Profile {
	return Profile{
		Engine:      engine.DefaultConfig(),
		Accumulator: policy.DefaultAccumulatorConfig(),
		Signals:     signals.DefaultConfig(),
		STB:         entry.DefaultSTBConfig(),
		Trend:       entry.DefaultTrendConfig(),
		Crossover:   entry.DefaultCrossoverConfig(),
		Risk:        risk.DefaultConfig(),
	}
}

// LoadEngineProfile overlays the YAML profile at path onto p. Unknown keys are rejected.
func LoadEngineProfile(path string, p *Profile) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading engine profile: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(p); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parsing engine profile %s: %w", path, err)
	}
	return nil
}

// LoadConfig loads configuration from environment variables (.env file).
// Precedence is defaults, then the ENGINE_PROFILE file, then individual variables.
func LoadConfig() (*Config, error) {
	// Load .env file, but don't fail if it doesn't exist (allow pure env vars)
	_ = godotenv.Load()

	cfg := &Config{}
	env := &envReader{}

	// Binance API
	cfg.APIKey = getEnv("BINANCE_API_KEY", "")
	cfg.SecretKey = getEnv("BINANCE_API_SECRET", "")
	cfg.IsTestnet = getEnvAsBool("IS_TESTNET", false)

	// Market data
	cfg.Symbol = getEnv("SYMBOL", "ETHUSDT")
	cfg.Interval = getEnv("INTERVAL", "1m")
	cfg.BarsFile = getEnv("BARS_FILE", "./data/bars.csv")
	cfg.DataDir = getEnv("DATA_DIR", "./data")
	cfg.WarmupBars = 500
	env.intVar("WARMUP_BARS", &cfg.WarmupBars)
	if cfg.WarmupBars <= 0 {
		env.fail("WARMUP_BARS must be positive")
	}

	// Profile
	profile := DefaultProfile()
	cfg.EngineProfile = getEnv("ENGINE_PROFILE", "")
	if cfg.EngineProfile != "" {
		if err := LoadEngineProfile(cfg.EngineProfile, &profile); err != nil {
			env.fail(err.Error())
		}
	}

	// Engine constants
	e := &profile.Engine
	env.floatVar("MFE_ACTIVATION_THRESHOLD", &e.MFEActivationThreshold)
	env.floatVar("TRAIL_OFFSET", &e.TrailOffset)
	env.floatVar("DEFAULT_STOP_DISTANCE", &e.DefaultStopDistance)
	env.intVar("DEFENSE_TRIGGER_BARS", &e.DefenseTriggerBars)
	env.floatVar("DEFENSE_MFE_CEILING", &e.DefenseMFECeiling)
	env.floatVar("DEFENSE_STOP_DISTANCE", &e.DefenseStopDistance)
	env.floatVar("MIN_PNL_FLOOR", &e.MinPnLFloor)
	env.boolVar("DEFENSE_ENABLED", &e.DefenseEnabled)
	env.boolVar("EXIT_ON_ACTIVATION_BAR", &e.ExitOnActivationBar)
	if err := e.Validate(); err != nil {
		env.fail(err.Error())
	}
	cfg.Engine = *e

	// Accumulator policy
	a := &profile.Accumulator
	env.intVar("ACC_OBSERVATION_WINDOW_BARS", &a.ObservationWindowBars)
	env.floatVar("ACC_FORCE_MIN", &a.ForceMin)
	env.intVar("ACC_TAU_MIN", &a.TauMin)
	env.intVar("ACC_DIR_THRESHOLD", &a.DirThreshold)
	env.floatVar("ACC_FORCE_ACCUMULATION_GATE", &a.ForceAccumulationGate)
	env.intVar("ACC_MAX_SESSION_BARS", &a.MaxSessionBars)
	env.floatVar("ACC_MAE_LIMIT", &a.MAELimit)
	env.intVar("ACC_TAU_COLLAPSE_DROP", &a.TauCollapseDrop)
	env.intVar("ACC_HOLD_SMALL_TAU_MIN", &a.HoldSmallTauMin)
	env.floatVar("ACC_HOLD_SMALL_MFE_MIN", &a.HoldSmallMFEMin)
	env.boolVar("ACC_CAPS_OVERRIDE_HOLD", &a.CapsOverrideHold)

	// STB detector
	s := &profile.STB
	env.intVar("STB_HISTORY_BARS", &s.HistoryBars)
	env.intVar("STB_CHANNEL_BARS", &s.ChannelBars)
	env.floatVar("STB_MIN_CHANNEL_RANGE", &s.MinChannelRange)
	env.floatVar("STB_BODY_Z_MIN", &s.BodyZMin)
	env.floatVar("STB_SHORT_RATIO", &s.ShortRatio)
	env.floatVar("STB_LONG_RATIO", &s.LongRatio)
	env.floatVar("STB_SHORT_CHANNEL_PCT", &s.ShortChannelPct)
	env.floatVar("STB_LONG_CHANNEL_PCT", &s.LongChannelPct)

	// Trend detector
	t := &profile.Trend
	env.intVar("TREND_SHORT_MA_PERIOD", &t.ShortTermMAPeriod)
	env.intVar("TREND_LONG_MA_PERIOD", &t.LongTermMAPeriod)
	env.intVar("TREND_EMA_PERIOD", &t.EMAPeriod)
	env.intVar("TREND_RSI_PERIOD", &t.RSIPeriod)
	env.floatVar("TREND_RSI_OVERBOUGHT", &t.RSIOverbought)
	env.floatVar("TREND_RSI_OVERSOLD", &t.RSIOversold)
	env.boolVar("TREND_ALLOW_SHORT", &t.AllowShort)

	// Crossover detector
	x := &profile.Crossover
	env.intVar("CROSS_FAST_MA_PERIOD", &x.FastMAPeriod)
	env.intVar("CROSS_SLOW_MA_PERIOD", &x.SlowMAPeriod)
	env.intVar("CROSS_SIGNAL_PERIOD", &x.SignalPeriod)
	env.intVar("CROSS_ATR_PERIOD", &x.ATRPeriod)
	env.intVar("CROSS_RSI_PERIOD", &x.RSIPeriod)
	env.floatVar("CROSS_RSI_LOW", &x.RSILow)
	env.floatVar("CROSS_RSI_HIGH", &x.RSIHigh)
	env.floatVar("CROSS_MIN_MOMENTUM_PCT", &x.MinMomentumPct)
	env.floatVar("CROSS_MIN_VOLUME_RATIO", &x.MinVolumeRatio)
	env.floatVar("CROSS_MAX_ATR_PCT", &x.MaxATRPct)
	env.intVar("CROSS_MIN_CONFIRMATIONS", &x.MinConfirmations)
	env.boolVar("CROSS_ALLOW_SHORT", &x.AllowShort)

	cfg.Strategy = strategies.Options{
		Detector:            getEnv("ENTRY_DETECTOR", entry.STBDetectorName),
		Policy:              getEnv("EXIT_POLICY", policy.ThresholdPolicyName),
		ExitOnActivationBar: e.ExitOnActivationBar,
		STB:                 *s,
		Trend:               *t,
		Crossover:           *x,
		Accumulator:         *a,
		Signals:             profile.Signals,
	}
	validateStrategy(env, cfg.Strategy)

	// Entry gate
	r := &profile.Risk
	env.intVar("MAX_OPEN_SESSIONS", &r.MaxOpenSessions)
	env.intVar("MAX_OPEN_PER_DIRECTION", &r.MaxOpenPerDirection)
	env.intVar("ENTRY_COOLDOWN_BARS", &r.CooldownBars)
	env.floatVar("MAX_DAILY_LOSS", &r.MaxDailyLoss)
	env.intVar("MAX_DAILY_TRADES", &r.MaxDailyTrades)
	if r.MaxOpenSessions < 0 || r.MaxOpenPerDirection < 0 || r.CooldownBars < 0 || r.MaxDailyTrades < 0 || r.MaxDailyLoss < 0 {
		env.fail("entry gate limits cannot be negative")
	}
	cfg.Risk = *r

	// Database
	cfg.DBPath = getEnv("DB_PATH", "./data/energy_engine.db")
	if cfg.DBPath == "" {
		env.fail("DB_PATH must be set")
	}

	// Logging
	logLevelStr := getEnv("LOG_LEVEL", "INFO")
	cfg.LogLevel = logger.ParseLevel(logLevelStr) // Use the parser from the logger package
	cfg.LogFormat = strings.ToLower(getEnv("LOG_FORMAT", "text"))
	if cfg.LogFormat != "text" && cfg.LogFormat != "json" {
		env.fail(fmt.Sprintf("LOG_FORMAT must be text or json, got %q", cfg.LogFormat))
	}

	// Connection Settings
	reconnectDelaySeconds := 5
	env.intVar("RECONNECT_DELAY_SECONDS", &reconnectDelaySeconds)
	if reconnectDelaySeconds <= 0 {
		env.fail("RECONNECT_DELAY_SECONDS must be positive")
	}
	cfg.ReconnectDelay = time.Duration(reconnectDelaySeconds) * time.Second

	cfg.MaxReconnectAttempts = 10
	env.intVar("MAX_RECONNECT_ATTEMPTS", &cfg.MaxReconnectAttempts)
	if cfg.MaxReconnectAttempts < 0 {
		env.fail("MAX_RECONNECT_ATTEMPTS cannot be negative")
	}

	// Combine validation errors
	if len(env.errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %s", strings.Join(env.errs, "; "))
	}

	return cfg, nil
}

// validateStrategy checks the selected names and the thresholds of the selected components only.
func validateStrategy(env *envReader, o strategies.Options) {
	if !slices.Contains(strategies.Detectors(), o.Detector) {
		env.fail(fmt.Sprintf("ENTRY_DETECTOR must be one of %v, got %q", strategies.Detectors(), o.Detector))
	}
	if !slices.Contains(strategies.Policies(), o.Policy) {
		env.fail(fmt.Sprintf("EXIT_POLICY must be one of %v, got %q", strategies.Policies(), o.Policy))
	}

	switch o.Detector {
	case entry.STBDetectorName:
		if err := o.STB.Validate(); err != nil {
			env.fail(err.Error())
		}
	case entry.TrendDetectorName:
		t := o.Trend
		if t.ShortTermMAPeriod <= 0 || t.LongTermMAPeriod <= 0 || t.EMAPeriod <= 0 || t.RSIPeriod <= 0 {
			env.fail("trend periods (MA, EMA, RSI) must be positive")
		}
		if t.ShortTermMAPeriod >= t.LongTermMAPeriod {
			env.fail("TREND_SHORT_MA_PERIOD must be less than TREND_LONG_MA_PERIOD")
		}
		if t.RSIOverbought <= t.RSIOversold || t.RSIOverbought > 100 || t.RSIOversold < 0 {
			env.fail("invalid RSI thresholds (Overbought must be > Oversold, between 0-100)")
		}
	case entry.CrossoverDetectorName:
		if err := o.Crossover.Validate(); err != nil {
			env.fail(err.Error())
		}
	}
	if o.Policy == policy.AccumulatorPolicyName {
		if err := o.Accumulator.Validate(); err != nil {
			env.fail(err.Error())
		}
	}
}

// --- Env Var Helpers ---

// envReader overrides values in place and collects parse failures.
type envReader struct {
	errs []string
}

func (r *envReader) fail(msg string) {
	r.errs = append(r.errs, msg)
}

func (r *envReader) intVar(key string, dst *int) {
	v, err := getEnvAsIntRequired(key, *dst)
	if err != nil {
		r.fail(fmt.Sprintf("invalid %s: %v", key, err))
		return
	}
	*dst = v
}

func (r *envReader) floatVar(key string, dst *float64) {
	v, err := getEnvAsFloatRequired(key, *dst)
	if err != nil {
		r.fail(fmt.Sprintf("invalid %s: %v", key, err))
		return
	}
	*dst = v
}

func (r *envReader) boolVar(key string, dst *bool) {
	v, err := getEnvAsBoolRequired(key, *dst)
	if err != nil {
		r.fail(fmt.Sprintf("invalid %s: %v", key, err))
		return
	}
	*dst = v
}

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsIntRequired(key string, defaultValue int) (int, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		// Use default if env var is not set at all
		return defaultValue, nil
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		// Return error if env var is set but invalid
		return 0, fmt.Errorf("invalid integer value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}

func getEnvAsFloatRequired(key string, defaultValue float64) (float64, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue, nil
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid float value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}

func getEnvAsBoolRequired(key string, defaultValue bool) (bool, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue, nil
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return false, fmt.Errorf("invalid boolean value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}

func getEnvAsBool(key string, defaultValue bool) bool {
	value, err := getEnvAsBoolRequired(key, defaultValue)
	if err != nil {
		return defaultValue
	}
	return value
}
