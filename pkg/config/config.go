package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Stake bounds accepted by the broker, in account currency.
const (
	MinStake = 0.35
	MaxStake = 100.0
)

// ErrInvalid wraps every validation failure returned by Validate.
var ErrInvalid = errors.New("invalid configuration")

// Config holds environment-driven settings for the trading core.
type Config struct {
	// Broker
	BrokerURL      string
	BrokerWSURL    string
	BrokerAPIToken string
	BrokerRPS      float64
	SettleTimeout  time.Duration
	// Projected vs broker balance check; 0 disables.
	ReconcileInterval time.Duration

	// Session
	Symbol            string
	DemoMode          bool
	DryRun            bool
	DailyProfitTarget float64
	DailyLossLimit    float64 // magnitude; negative input is accepted and flipped
	BaseStake         float64
	MaxTrades         int
	ContractDuration  int // ticks

	// Pacing
	IdleInterval    time.Duration
	TradeInterval   time.Duration
	FailureBackoff  time.Duration
	SummaryInterval time.Duration

	// Price feed
	UseMockFeed    bool
	StrategyConfig string

	// Dry-run simulation
	SimWinProbability float64
	SimPayoutRatio    float64
	SimStartBalance   float64

	// Journal
	JournalEnabled bool
	DBPath         string

	// Reporting API
	APIEnabled bool
	Port       string
	JWTSecret  string

	// Logging / localization
	LogLevel  string
	LogPretty bool
	Language  string
}

// Load reads environment variables (optionally via .env) into Config.
func Load() (*Config, error) {
	// Ignore error so the app still starts when .env is missing.
	_ = godotenv.Load()

	maxTrades, err := getEnvIntStrict("MAX_TRADES", 200)
	if err != nil {
		return nil, err
	}
	duration, err := getEnvIntStrict("CONTRACT_DURATION", 4)
	if err != nil {
		return nil, err
	}
	target, err := getEnvFloatStrict("DAILY_PROFIT_TARGET", 10)
	if err != nil {
		return nil, err
	}
	lossLimit, err := getEnvFloatStrict("DAILY_LOSS_LIMIT", 10)
	if err != nil {
		return nil, err
	}
	stake, err := getEnvFloatStrict("BASE_STAKE", 0.50)
	if err != nil {
		return nil, err
	}

	return &Config{
		BrokerURL:         getEnv("BROKER_URL", "https://api.deriv.com"),
		BrokerWSURL:       getEnv("BROKER_WS_URL", "wss://ws.derivws.com/websockets/v3?app_id=1089"),
		BrokerAPIToken:    os.Getenv("BROKER_API_TOKEN"),
		BrokerRPS:         getEnvFloat("BROKER_RPS", 2),
		SettleTimeout:     getEnvDuration("SETTLE_TIMEOUT", 30*time.Second),
		ReconcileInterval: getEnvDuration("RECONCILE_INTERVAL", time.Minute),
		Symbol:            getEnv("SYMBOL", "1HZ100V"),
		DemoMode:          getEnv("DEMO_MODE", "true") == "true",
		DryRun:            getEnv("DRY_RUN", "true") == "true",
		DailyProfitTarget: target,
		DailyLossLimit:    math.Abs(lossLimit),
		BaseStake:         stake,
		MaxTrades:         maxTrades,
		ContractDuration:  duration,
		IdleInterval:      getEnvDuration("IDLE_INTERVAL", time.Second),
		TradeInterval:     getEnvDuration("TRADE_INTERVAL", 2*time.Second),
		FailureBackoff:    getEnvDuration("FAILURE_BACKOFF", 3*time.Second),
		SummaryInterval:   getEnvDuration("SUMMARY_INTERVAL", 30*time.Second),
		UseMockFeed:       getEnv("USE_MOCK_FEED", "true") == "true",
		StrategyConfig:    getEnv("STRATEGY_CONFIG", "strategy.yaml"),
		SimWinProbability: getEnvFloat("SIM_WIN_PROBABILITY", 0.62),
		SimPayoutRatio:    getEnvFloat("SIM_PAYOUT_RATIO", 0.85),
		SimStartBalance:   getEnvFloat("SIM_START_BALANCE", 1000),
		JournalEnabled:    getEnv("JOURNAL_ENABLED", "true") == "true",
		DBPath:            getEnv("DB_PATH", "./data/journal.db"),
		APIEnabled:        getEnv("API_ENABLED", "true") == "true",
		Port:              getEnv("PORT", "8080"),
		JWTSecret:         os.Getenv("JWT_SECRET"),
		LogLevel:          getEnv("LOG_LEVEL", "INFO"),
		LogPretty:         getEnv("LOG_PRETTY", "true") == "true",
		Language:          getEnv("LANGUAGE", "en"),
	}, nil
}

// Validate rejects out-of-range session inputs before a session may start.
// All problems are reported together.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...))
	}

	if !(c.DailyProfitTarget > 0) || math.IsInf(c.DailyProfitTarget, 0) {
		add("daily profit target must be > 0, got %v", c.DailyProfitTarget)
	}
	if c.DailyLossLimit < 0 || math.IsNaN(c.DailyLossLimit) || math.IsInf(c.DailyLossLimit, 0) {
		add("daily loss limit must be a finite magnitude >= 0, got %v", c.DailyLossLimit)
	}
	if !(c.BaseStake >= MinStake && c.BaseStake <= MaxStake) {
		add("base stake must be within [%.2f, %.2f], got %v", MinStake, MaxStake, c.BaseStake)
	}
	if c.MaxTrades <= 0 {
		add("max trades must be > 0, got %d", c.MaxTrades)
	}
	if c.ContractDuration <= 0 {
		add("contract duration must be > 0 ticks, got %d", c.ContractDuration)
	}
	if strings.TrimSpace(c.Symbol) == "" {
		add("symbol is required")
	}
	if !c.DryRun && c.BrokerAPIToken == "" {
		add("BROKER_API_TOKEN is required outside dry-run mode")
	}
	if c.DryRun {
		if c.SimWinProbability < 0 || c.SimWinProbability > 1 {
			add("simulated win probability must be within [0, 1], got %v", c.SimWinProbability)
		}
		if c.SimPayoutRatio <= 0 {
			add("simulated payout ratio must be > 0, got %v", c.SimPayoutRatio)
		}
		if c.SimStartBalance < 0 {
			add("simulated start balance must be >= 0, got %v", c.SimStartBalance)
		}
	}
	return errors.Join(errs...)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

// Session parameters must not silently fall back to defaults on a typo.
func getEnvFloatStrict(key string, def float64) (float64, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q is not a number", ErrInvalid, key, v)
	}
	return f, nil
}

func getEnvIntStrict(key string, def int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q is not an integer", ErrInvalid, key, v)
	}
	return i, nil
}
