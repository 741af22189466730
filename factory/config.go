/*
Package factory converts JSON rule sets into vacation.AppConfig.

PURPOSE:
  HR maintains leave policy as JSON (admin UI, files under version control,
  the vacation_app_configs table). The factory decodes that JSON strictly,
  applies defaults and validates, so callers get a ready AppConfig or a
  validation error.

JSON SCHEMA:
  {
    "version": "2024-04",
    "baselineRule": {"kind": "FIXED_MONTH_DAY", "month": 4, "day": 1},
    "grantCycleMonths": 12,
    "expiry": {"kind": "END_OF_FY", "monthsValid": 12},
    "rounding": {"unit": "HOUR", "mode": "FLOOR", "minutesStep": 30},
    "minLegalUseDaysPerYear": 5,
    "fullTime": {"label": "通常労働者", "table": [{"years": 0.5, "days": 10}]},
    "partTime": {"labels": {"1": "週1日"}, "tables": [{"weeklyPattern": 1, "grants": [...]}]},
    "alert": {"checkpoints": [{"monthsBefore": 3, "minConsumedDays": 5}], "minGrantDaysForAlert": 10}
  }

DEFAULTS:
  grantCycleMonths 12, rounding DAY/ROUND, minutesStep 30 for HOUR,
  minLegalUseDaysPerYear 5.

PRESETS:
  statutory     the built-in default (労働基準法第39条)
  fiscal-april  everyone on April 1st, expiring at the end of the next year
  anniversary   join anniversary plus six months, 24-month expiry, hourly leave
*/
package factory

import (
	"bytes"
	"fmt"
	"sort"

	json "github.com/goccy/go-json"
	"github.com/warp/yukyu/generic"
	"github.com/warp/yukyu/vacation"
)

// ParseAppConfig decodes, normalizes and validates a JSON config. Unknown
// fields are rejected.
func ParseAppConfig(data []byte) (vacation.AppConfig, error) {
	var cfg vacation.AppConfig
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return vacation.AppConfig{}, generic.Validationf("failed to parse config JSON: %v", err)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return vacation.AppConfig{}, err
	}
	return cfg, nil
}

// MarshalAppConfig encodes cfg with indentation.
func MarshalAppConfig(cfg vacation.AppConfig) ([]byte, error) {
	out, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config: %w", err)
	}
	return out, nil
}

// =============================================================================
// PRESETS
// =============================================================================

const (
	PresetStatutory   = "statutory"
	PresetFiscalApril = "fiscal-april"
	PresetAnniversary = "anniversary"
)

// Preset is a named ready-made config.
type Preset struct {
	Name        string             `json:"name"`
	Description string             `json:"description"`
	Config      vacation.AppConfig `json:"config"`
}

// Presets returns every preset ordered by name. Each call builds fresh copies.
func Presets() []Preset {
	fiscal := vacation.DefaultAppConfig()
	fiscal.Version = "preset-fiscal-april"
	fiscal.BaselineRule = vacation.FixedMonthDay(4, 1)
	fiscal.Expiry = vacation.ExpireEndOfFY(12)

	anniversary := vacation.DefaultAppConfig()
	anniversary.Version = "preset-anniversary"
	anniversary.BaselineRule = vacation.Anniversary(6)
	anniversary.Expiry = vacation.ExpireAfterMonths(24)
	anniversary.Rounding = vacation.RoundingRule{
		Unit:        vacation.RoundHour,
		Mode:        vacation.ModeFloor,
		MinutesStep: vacation.DefaultMinutesStep,
	}

	presets := []Preset{
		{
			Name:        PresetStatutory,
			Description: "入社6か月後に初回付与、以降1年ごと。付与から2年で失効。",
			Config:      vacation.DefaultAppConfig(),
		},
		{
			Name:        PresetFiscalApril,
			Description: "毎年4月1日に一斉付与。付与翌年の12月31日で失効。",
			Config:      fiscal,
		},
		{
			Name:        PresetAnniversary,
			Description: "入社記念日の6か月後に付与。24か月で失効。時間単位取得(30分単位)。",
			Config:      anniversary,
		},
	}
	sort.Slice(presets, func(i, j int) bool { return presets[i].Name < presets[j].Name })
	return presets
}

// LookupPreset returns the named preset config.
func LookupPreset(name string) (vacation.AppConfig, error) {
	for _, p := range Presets() {
		if p.Name == name {
			return p.Config, nil
		}
	}
	return vacation.AppConfig{}, fmt.Errorf("%w: preset %s", generic.ErrNotFound, name)
}
