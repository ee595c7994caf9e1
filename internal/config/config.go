package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"momentum/internal/sizing"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/multierr"
)

type Mode string

const (
	ModeSimulate Mode = "simulate"
	ModeLive     Mode = "live"
)

const envPrefix = "MOMENTUM"

type Config struct {
	Mode         Mode
	Symbol       string
	BaseAsset    string
	QuoteAsset   string
	Interval     time.Duration
	PollInterval time.Duration
	CallTimeout  time.Duration

	MomentumPeriod     int
	TrendWindow        int
	VolatilityLookback int
	PeriodsPerDay      int
	PeriodsPerYear     float64
	WindowCapacity     int
	WarmupSamples      int

	BuyThreshold        float64
	SellThreshold       float64
	TakeProfitPct       float64
	EntryTrendFloor     float64
	EmergencyTrendFloor float64

	Sizing       sizing.Strategy
	BaseNotional float64
	MinNotional  float64
	BalanceUsage float64
	ExitFraction float64
	DustNotional float64

	MaxTradesPerDay int
	MinHold         time.Duration
	MakerFee        float64
	TakerFee        float64
	InitialQuote    float64
	RiskFreeRate    float64

	DecisionsPath  string
	CheckpointPath string
	LogPath        string
	LogLevel       string

	APIKey    string
	APISecret string
	BaseURL   string

	// AdvisorURL enables the chat model trade idea advisor when set.
	AdvisorURL     string
	AdvisorModel   string
	AdvisorTimeout time.Duration
	AdvisorPrompt  string
	AdvisorContext string
}

// Load resolves the configuration from flag defaults, an optional config
// file (--config), MOMENTUM_* environment variables and finally explicit
// flags, in increasing order of precedence. A .env file in the working
// directory is loaded first and never overrides the real environment.
func Load(args []string) (Config, error) {
	return Parse(NewFlagSet("momentum"), args)
}

// Parse loads .env, parses args into flags and merges the result. flags
// must come from NewFlagSet, optionally with extra driver flags added.
func Parse(flags *pflag.FlagSet, args []string) (Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return Config{}, err
	}
	if err := flags.Parse(args); err != nil {
		return Config{}, err
	}
	return FromFlags(flags)
}

// NewFlagSet declares every configuration flag with its default. Drivers
// may add their own flags before parsing.
func NewFlagSet(name string) *pflag.FlagSet {
	flags := pflag.NewFlagSet(name, pflag.ContinueOnError)
	flags.String("config", "", "optional YAML or JSON config file")
	flags.String("mode", string(ModeSimulate), "run mode: simulate or live")
	flags.String("symbol", "XRP/USD", "trading pair")
	flags.String("base-asset", "", "base asset (derived from symbol when empty)")
	flags.String("quote-asset", "", "quote asset (derived from symbol when empty)")
	flags.Duration("interval", time.Hour, "candle interval")
	flags.Duration("poll-interval", time.Hour, "live polling interval")
	flags.Duration("call-timeout", 10*time.Second, "timeout for each exchange call")

	flags.Int("momentum-period", 3, "momentum lookback in samples")
	flags.Int("trend-window", 12, "trend window in samples")
	flags.Int("volatility-lookback", 24, "volatility lookback in returns")
	flags.Int("periods-per-day", 24, "samples per day")
	flags.Float64("periods-per-year", 8760, "samples per year for annualization")
	flags.Int("window-capacity", 96, "price window capacity")
	flags.Int("warmup-samples", 15, "samples observed before any decision")

	flags.Float64("buy-threshold", 0.006, "entry momentum threshold")
	flags.Float64("sell-threshold", 0.010, "exit momentum threshold")
	flags.Float64("take-profit", 0.02, "take profit fraction")
	flags.Float64("entry-trend-floor", -0.02, "minimum trend for an entry")
	flags.Float64("emergency-trend-floor", -0.05, "trend below which an open position is closed")

	flags.String("sizing", string(sizing.Fixed), "sizing strategy: fixed, percentage, momentum, adaptive, signal_quality")
	flags.Float64("base-notional", 200, "base trade notional in quote currency")
	flags.Float64("min-notional", 20, "minimum viable trade notional")
	flags.Float64("balance-usage", 0.9, "maximum share of quote balance per entry")
	flags.Float64("exit-fraction", 1.0, "share of base balance sold on exit")
	flags.Float64("dust-notional", 0, "residual value below which a partial exit closes the position (defaults to min-notional)")

	flags.Int("max-trades-per-day", 10, "maximum trades per UTC day")
	flags.Duration("min-hold", 30*time.Minute, "minimum hold before an ordinary exit")
	flags.Float64("maker-fee", 0.0025, "maker fee rate")
	flags.Float64("taker-fee", 0.0030, "taker fee rate")
	flags.Float64("initial-quote", 2000, "simulated starting quote balance")
	flags.Float64("risk-free-rate", 0.02, "annual risk-free rate for the Sharpe ratio")

	flags.String("decisions-path", "decisions.ndjson", "path to decisions log")
	flags.String("checkpoint-path", "checkpoint.json", "path to checkpoint file")
	flags.String("log-path", "momentum.log", "path to rotating log file (empty for console only)")
	flags.String("log-level", "info", "log level")
	flags.String("base-url", "https://paper-api.alpaca.markets", "trading API base URL")

	flags.String("advisor-url", "", "Ollama base URL for trade idea hints (empty disables)")
	flags.String("advisor-model", "llama3.1", "model asked for trade ideas")
	flags.Duration("advisor-timeout", 30*time.Second, "timeout for one advisor request")
	flags.String("advisor-prompt", "", "optional prompt template file")
	flags.String("advisor-context", "", "extra context appended to the advisor prompt")
	return flags
}

// FromFlags merges a parsed flag set with the config file and environment.
func FromFlags(flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(flags); err != nil {
		return Config{}, err
	}

	if path := v.GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg := decode(v)
	cfg.APIKey = os.Getenv("APCA_API_KEY_ID")
	cfg.APISecret = os.Getenv("APCA_API_SECRET_KEY")

	cfg.applyDerived()
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Default returns the configuration produced by an empty command line,
// ignoring the environment.
func Default() Config {
	flags := NewFlagSet("default")
	_ = flags.Parse(nil)
	v := viper.New()
	_ = v.BindPFlags(flags)
	cfg := decode(v)
	cfg.applyDerived()
	return cfg
}

func decode(v *viper.Viper) Config {
	return Config{
		Mode:         Mode(v.GetString("mode")),
		Symbol:       v.GetString("symbol"),
		BaseAsset:    v.GetString("base-asset"),
		QuoteAsset:   v.GetString("quote-asset"),
		Interval:     v.GetDuration("interval"),
		PollInterval: v.GetDuration("poll-interval"),
		CallTimeout:  v.GetDuration("call-timeout"),

		MomentumPeriod:     v.GetInt("momentum-period"),
		TrendWindow:        v.GetInt("trend-window"),
		VolatilityLookback: v.GetInt("volatility-lookback"),
		PeriodsPerDay:      v.GetInt("periods-per-day"),
		PeriodsPerYear:     v.GetFloat64("periods-per-year"),
		WindowCapacity:     v.GetInt("window-capacity"),
		WarmupSamples:      v.GetInt("warmup-samples"),

		BuyThreshold:        v.GetFloat64("buy-threshold"),
		SellThreshold:       v.GetFloat64("sell-threshold"),
		TakeProfitPct:       v.GetFloat64("take-profit"),
		EntryTrendFloor:     v.GetFloat64("entry-trend-floor"),
		EmergencyTrendFloor: v.GetFloat64("emergency-trend-floor"),

		Sizing:       sizing.Strategy(v.GetString("sizing")),
		BaseNotional: v.GetFloat64("base-notional"),
		MinNotional:  v.GetFloat64("min-notional"),
		BalanceUsage: v.GetFloat64("balance-usage"),
		ExitFraction: v.GetFloat64("exit-fraction"),
		DustNotional: v.GetFloat64("dust-notional"),

		MaxTradesPerDay: v.GetInt("max-trades-per-day"),
		MinHold:         v.GetDuration("min-hold"),
		MakerFee:        v.GetFloat64("maker-fee"),
		TakerFee:        v.GetFloat64("taker-fee"),
		InitialQuote:    v.GetFloat64("initial-quote"),
		RiskFreeRate:    v.GetFloat64("risk-free-rate"),

		DecisionsPath:  v.GetString("decisions-path"),
		CheckpointPath: v.GetString("checkpoint-path"),
		LogPath:        v.GetString("log-path"),
		LogLevel:       v.GetString("log-level"),
		BaseURL:        v.GetString("base-url"),

		AdvisorURL:     v.GetString("advisor-url"),
		AdvisorModel:   v.GetString("advisor-model"),
		AdvisorTimeout: v.GetDuration("advisor-timeout"),
		AdvisorPrompt:  v.GetString("advisor-prompt"),
		AdvisorContext: v.GetString("advisor-context"),
	}
}

func (c *Config) applyDerived() {
	base, quote, ok := strings.Cut(c.Symbol, "/")
	if c.BaseAsset == "" && ok {
		c.BaseAsset = base
	}
	if c.QuoteAsset == "" && ok {
		c.QuoteAsset = quote
	}
	if c.DustNotional <= 0 {
		c.DustNotional = c.MinNotional
	}
}

// Validate reports every problem with cfg at once.
func Validate(cfg Config) error {
	return validate(cfg)
}

func validate(cfg Config) error {
	var err error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			err = multierr.Append(err, fmt.Errorf(format, args...))
		}
	}

	check(cfg.Mode == ModeSimulate || cfg.Mode == ModeLive, "invalid mode: %s", cfg.Mode)
	if cfg.Mode == ModeLive {
		check(cfg.APIKey != "" && cfg.APISecret != "", "APCA_API_KEY_ID and APCA_API_SECRET_KEY are required in live mode")
	}
	check(cfg.Symbol != "", "symbol is required")
	check(cfg.BaseAsset != "" && cfg.QuoteAsset != "", "symbol must look like BASE/QUOTE or set base-asset and quote-asset")
	check(cfg.Interval > 0, "interval must be > 0")
	check(cfg.PollInterval > 0, "poll-interval must be > 0")
	check(cfg.CallTimeout > 0, "call-timeout must be > 0")

	check(cfg.MomentumPeriod > 0, "momentum-period must be > 0")
	check(cfg.TrendWindow > 1, "trend-window must be > 1")
	check(cfg.VolatilityLookback > 1, "volatility-lookback must be > 1")
	check(cfg.PeriodsPerDay > 0, "periods-per-day must be > 0")
	check(cfg.PeriodsPerYear > 0, "periods-per-year must be > 0")
	check(cfg.WarmupSamples >= 0, "warmup-samples must be >= 0")

	check(cfg.BuyThreshold > 0, "buy-threshold must be > 0")
	check(cfg.SellThreshold > 0, "sell-threshold must be > 0")
	check(cfg.TakeProfitPct > 0, "take-profit must be > 0")
	check(cfg.EmergencyTrendFloor < 0, "emergency-trend-floor must be < 0")

	if _, perr := sizing.ParseStrategy(string(cfg.Sizing)); perr != nil {
		err = multierr.Append(err, perr)
	}
	check(cfg.BaseNotional > 0, "base-notional must be > 0")
	check(cfg.MinNotional >= 0, "min-notional must be >= 0")
	check(cfg.BalanceUsage > 0 && cfg.BalanceUsage <= 0.9, "balance-usage must be in (0, 0.9]")
	check(cfg.ExitFraction > 0 && cfg.ExitFraction <= 1, "exit-fraction must be in (0, 1]")

	check(cfg.MaxTradesPerDay > 0, "max-trades-per-day must be > 0")
	check(cfg.MinHold >= 0, "min-hold must be >= 0")
	check(cfg.MakerFee >= 0 && cfg.MakerFee < 1, "maker-fee must be in [0, 1)")
	check(cfg.TakerFee >= 0 && cfg.TakerFee < 1, "taker-fee must be in [0, 1)")
	check(cfg.InitialQuote >= 0, "initial-quote must be >= 0")
	if cfg.AdvisorURL != "" {
		check(cfg.AdvisorModel != "", "advisor-model is required with advisor-url")
		check(cfg.AdvisorTimeout > 0, "advisor-timeout must be > 0")
	}
	return err
}

// loadDotEnv sets variables from path that are not already set. A missing
// file is not an error.
func loadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}
