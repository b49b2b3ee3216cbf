package config

import (
	"fmt"
	"math"
	"os"
	"sort"
	"time"

	"github.com/vitos/crypto_dca_bot/internal/domain"
	"gopkg.in/yaml.v3"
)

// DefaultProfileKey is the safety_configuration entry every pair falls back to.
const DefaultProfileKey = "default"

// SafetyOverride is one safety_configuration entry. Fields are pointers so a
// per-pair entry can override a single field and inherit the rest.
type SafetyOverride struct {
	PriceDeviation  *float64 `yaml:"price_deviation"`
	VolumeScale     *float64 `yaml:"volume_scale"`
	StepScale       *float64 `yaml:"step_scale"`
	MaxSafetyOrders *int     `yaml:"max_so"`
}

type BreakpointEntry struct {
	StartPercentage float64 `yaml:"start_percentage"`
	Factor          float64 `yaml:"factor"`
}

type UnfilledTimeout struct {
	Entry            int    `yaml:"entry"`
	Exit             int    `yaml:"exit"`
	ExitTimeoutCount int    `yaml:"exit_timeout_count"`
	Unit             string `yaml:"unit"` // "seconds" or "minutes", default seconds
}

type Config struct {
	SafetyConfiguration   map[string]SafetyOverride    `yaml:"safety_configuration"`
	SafetyOrderMode       string                       `yaml:"safety_order_mode"`
	TrailingConfiguration map[string][]BreakpointEntry `yaml:"trailing_configuration"`
	Unfilledtimeout       UnfilledTimeout              `yaml:"unfilledtimeout"`

	MaxOpenTrades        int     `yaml:"max_open_trades"`
	StakeAmount          float64 `yaml:"stake_amount"`
	TradableBalanceRatio float64 `yaml:"tradable_balance_ratio"`

	// Base trailing parameters, scaled by the active breakpoint factor.
	TrailingStopPositive       float64 `yaml:"trailing_stop_positive"`
	TrailingStopPositiveOffset float64 `yaml:"trailing_stop_positive_offset"`

	MinimalROI map[string]float64 `yaml:"minimal_roi"`
	Stoploss   float64            `yaml:"stoploss"`

	// MinProfit is a pointer so an explicit 0 (no minimum) is distinguishable
	// from an absent key, which falls back to the default.
	MinProfit *float64 `yaml:"min_profit"`

	LeverageConfiguration map[string]float64 `yaml:"leverage_configuration"`

	DryRunWallet float64 `yaml:"dry_run_wallet"`

	Internals struct {
		ProcessThrottleSecs int `yaml:"process_throttle_secs"`
		PairLockSecs        int `yaml:"pair_lock_secs"`
	} `yaml:"internals"`

	Feed struct {
		WSEndpoint string   `yaml:"ws_endpoint"`
		Pairs      []string `yaml:"pairs"`
	} `yaml:"feed"`

	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`

	Logging struct {
		Level string `yaml:"level"`
	} `yaml:"logging"`

	Server struct {
		Port int `yaml:"port"`
	} `yaml:"server"`
}

func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.SafetyOrderMode == "" {
		c.SafetyOrderMode = string(domain.LadderStatic)
	}
	if c.Internals.ProcessThrottleSecs <= 0 {
		c.Internals.ProcessThrottleSecs = 5
	}
	if c.Internals.PairLockSecs <= 0 {
		c.Internals.PairLockSecs = 300
	}
	if c.DryRunWallet <= 0 {
		c.DryRunWallet = 1000
	}
	if c.Unfilledtimeout.Unit == "" {
		c.Unfilledtimeout.Unit = "seconds"
	}
	if c.Database.Path == "" {
		c.Database.Path = "bot.db"
	}
}

// MinProfitRatio returns the exit-profit floor, defaulting when unset.
func (c *Config) MinProfitRatio() float64 {
	if c.MinProfit == nil {
		return 0.0025
	}
	return *c.MinProfit
}

// Validate returns the first configuration problem found, so the caller can
// surface a clear error before any trading starts.
func (c *Config) Validate() error {
	def, ok := c.SafetyConfiguration[DefaultProfileKey]
	if !ok {
		return &domain.ConfigError{Field: "safety_configuration", Reason: "missing 'default' profile"}
	}
	if def.PriceDeviation == nil || def.VolumeScale == nil || def.StepScale == nil || def.MaxSafetyOrders == nil {
		return &domain.ConfigError{Field: "safety_configuration.default", Reason: "default profile must set all fields"}
	}
	for key, override := range c.SafetyConfiguration {
		if err := validateOverride(key, override); err != nil {
			return err
		}
	}

	switch domain.LadderMode(c.SafetyOrderMode) {
	case domain.LadderStatic, domain.LadderShift:
	default:
		return &domain.ConfigError{Field: "safety_order_mode", Reason: fmt.Sprintf("unknown mode %q", c.SafetyOrderMode)}
	}

	for pair, entries := range c.TrailingConfiguration {
		if err := validateBreakpoints(pair, entries); err != nil {
			return err
		}
	}

	if c.MaxOpenTrades <= 0 {
		return &domain.ConfigError{Field: "max_open_trades", Reason: "must be positive"}
	}
	if c.StakeAmount <= 0 {
		return &domain.ConfigError{Field: "stake_amount", Reason: "must be positive"}
	}
	if c.TradableBalanceRatio <= 0 || c.TradableBalanceRatio > 1 {
		return &domain.ConfigError{Field: "tradable_balance_ratio", Reason: "must be in (0, 1]"}
	}
	if c.TrailingStopPositive < 0 || c.TrailingStopPositiveOffset < 0 {
		return &domain.ConfigError{Field: "trailing_stop_positive", Reason: "must not be negative"}
	}
	if c.MinProfit != nil && *c.MinProfit < 0 {
		return &domain.ConfigError{Field: "min_profit", Reason: "must not be negative"}
	}
	if c.Unfilledtimeout.Unit != "seconds" && c.Unfilledtimeout.Unit != "minutes" {
		return &domain.ConfigError{Field: "unfilledtimeout.unit", Reason: fmt.Sprintf("unknown unit %q", c.Unfilledtimeout.Unit)}
	}
	if c.Unfilledtimeout.Entry < 0 || c.Unfilledtimeout.Exit < 0 || c.Unfilledtimeout.ExitTimeoutCount < 0 {
		return &domain.ConfigError{Field: "unfilledtimeout", Reason: "must not be negative"}
	}
	for key, lev := range c.LeverageConfiguration {
		if lev <= 0 {
			return &domain.ConfigError{Field: "leverage_configuration." + key, Reason: "must be positive"}
		}
	}
	return nil
}

func validateOverride(key string, o SafetyOverride) error {
	if o.PriceDeviation != nil && *o.PriceDeviation <= 0 {
		return &domain.ConfigError{Field: "safety_configuration." + key + ".price_deviation", Reason: "must be positive"}
	}
	if o.VolumeScale != nil && *o.VolumeScale <= 0 {
		return &domain.ConfigError{Field: "safety_configuration." + key + ".volume_scale", Reason: "must be positive"}
	}
	if o.StepScale != nil && *o.StepScale <= 0 {
		return &domain.ConfigError{Field: "safety_configuration." + key + ".step_scale", Reason: "must be positive"}
	}
	if o.MaxSafetyOrders != nil && *o.MaxSafetyOrders < 0 {
		return &domain.ConfigError{Field: "safety_configuration." + key + ".max_so", Reason: "must not be negative"}
	}
	return nil
}

func validateBreakpoints(pair string, entries []BreakpointEntry) error {
	for i, e := range entries {
		if e.Factor <= 0 {
			return &domain.ConfigError{
				Field:  "trailing_configuration." + pair,
				Reason: fmt.Sprintf("breakpoint %d: factor must be positive", i),
			}
		}
		if i == 0 {
			continue
		}
		if e.StartPercentage == entries[i-1].StartPercentage {
			return &domain.ConfigError{
				Field:  "trailing_configuration." + pair,
				Reason: fmt.Sprintf("duplicate start_percentage %v", e.StartPercentage),
			}
		}
		if e.StartPercentage < entries[i-1].StartPercentage {
			return &domain.ConfigError{
				Field:  "trailing_configuration." + pair,
				Reason: "breakpoints must be sorted ascending by start_percentage",
			}
		}
	}
	return nil
}

// Breakpoints returns the pair's trailing breakpoints, or nil when the pair
// has none configured.
func (c *Config) Breakpoints(pair string) []domain.TrailingBreakpoint {
	entries, ok := c.TrailingConfiguration[pair]
	if !ok {
		return nil
	}
	bps := make([]domain.TrailingBreakpoint, len(entries))
	for i, e := range entries {
		bps[i] = domain.TrailingBreakpoint{StartPercentage: e.StartPercentage, Factor: e.Factor}
	}
	return bps
}

// EntryTimeout and ExitTimeout convert the configured values to durations.
func (c *Config) EntryTimeout() time.Duration {
	return timeoutDuration(c.Unfilledtimeout.Entry, c.Unfilledtimeout.Unit)
}

func (c *Config) ExitTimeout() time.Duration {
	return timeoutDuration(c.Unfilledtimeout.Exit, c.Unfilledtimeout.Unit)
}

func timeoutDuration(value int, unit string) time.Duration {
	if unit == "minutes" {
		return time.Duration(value) * time.Minute
	}
	return time.Duration(value) * time.Second
}

// ScaleByLeverage adjusts the minimal ROI table and the hard stoploss for the
// smallest configured leverage, mirroring how targets tighten when margin is
// in play. No-op when no leverage is configured.
func (c *Config) ScaleByLeverage() {
	if len(c.LeverageConfiguration) == 0 {
		return
	}
	leverage := math.MaxFloat64
	for _, v := range c.LeverageConfiguration {
		if v < leverage {
			leverage = v
		}
	}
	for k, v := range c.MinimalROI {
		c.MinimalROI[k] = math.Round(v*leverage*10000) / 10000
	}
	c.Stoploss *= leverage
}

// SortedPairs returns the configured feed pairs in stable order, so every
// tick walks positions the same way.
func (c *Config) SortedPairs() []string {
	pairs := make([]string, len(c.Feed.Pairs))
	copy(pairs, c.Feed.Pairs)
	sort.Strings(pairs)
	return pairs
}
