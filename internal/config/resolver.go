package config

import "github.com/vitos/crypto_dca_bot/internal/domain"

// ResolveProfile merges the default safety profile with the pair's override,
// field by field: an override field replaces the default only when present.
// Called once per pair when a position opens; the result is the position's
// immutable copy and the defaults are never mutated.
func (c *Config) ResolveProfile(pair string) (domain.SafetyOrderProfile, error) {
	def := c.SafetyConfiguration[DefaultProfileKey]
	profile := domain.SafetyOrderProfile{
		PriceDeviation:  *def.PriceDeviation,
		VolumeScale:     *def.VolumeScale,
		StepScale:       *def.StepScale,
		MaxSafetyOrders: *def.MaxSafetyOrders,
	}

	if override, ok := c.SafetyConfiguration[pair]; ok {
		if override.PriceDeviation != nil {
			profile.PriceDeviation = *override.PriceDeviation
		}
		if override.VolumeScale != nil {
			profile.VolumeScale = *override.VolumeScale
		}
		if override.StepScale != nil {
			profile.StepScale = *override.StepScale
		}
		if override.MaxSafetyOrders != nil {
			profile.MaxSafetyOrders = *override.MaxSafetyOrders
		}
	}

	if profile.PriceDeviation <= 0 {
		return profile, &domain.ConfigError{Field: pair + ".price_deviation", Reason: "must be positive"}
	}
	if profile.VolumeScale <= 0 {
		return profile, &domain.ConfigError{Field: pair + ".volume_scale", Reason: "must be positive"}
	}
	if profile.StepScale <= 0 {
		return profile, &domain.ConfigError{Field: pair + ".step_scale", Reason: "must be positive"}
	}
	if profile.MaxSafetyOrders < 0 {
		return profile, &domain.ConfigError{Field: pair + ".max_so", Reason: "must not be negative"}
	}
	return profile, nil
}

// ResolveLeverage looks up the leverage for a pair and side, falling back to
// the "default" entry and finally to 1x.
func (c *Config) ResolveLeverage(pair string, side domain.Side) float64 {
	key := pair + "_"
	if side == domain.SideLong {
		key += "long"
	} else {
		key += "short"
	}
	if lev, ok := c.LeverageConfiguration[key]; ok {
		return lev
	}
	if lev, ok := c.LeverageConfiguration[DefaultProfileKey]; ok {
		return lev
	}
	return 1.0
}
