/*
Package vacation implements Japanese statutory paid leave (年次有給休暇).

PURPOSE:
  Grants leave in lots at tenure anchors, expires each lot on its own date,
  debits approved leave newest-lot-first and reports per-employee figures.
  The rules themselves (anchors, grant tables, expiry, rounding, alerts)
  come from a versioned AppConfig so companies can encode their own policy
  on top of the statutory minimum.

KEY CONCEPTS IN THIS FILE (config.go):
  - AppConfig: the versioned rule set
  - BaselineRule / ExpiryRule / RoundingRule: tagged variants, one Kind each
  - DefaultAppConfig: the statutory table, used whenever nothing is stored

LIFECYCLE:
  config -> anchors -> grant lots -> (requests -> consumption) -> expiry sweep
                                  \-> stats

SEE ALSO:
  - anchors.go: anchor iteration per BaselineRule kind
  - grant.go: table lookup and expiry
  - configs.go: persistence and loading with fallback
*/
package vacation

import (
	"sort"

	"github.com/warp/yukyu/generic"
)

// =============================================================================
// BASELINE RULE - where grant anchors fall
// =============================================================================

type BaselineKind string

const (
	// BaselineAnniversary anchors on the join month/day every year, shifted by OffsetMonths.
	BaselineAnniversary BaselineKind = "ANNIVERSARY"
	// BaselineFixedMonthDay anchors on one company-wide date every year.
	BaselineFixedMonthDay BaselineKind = "FIXED_MONTH_DAY"
	// BaselineRelativeFromJoin anchors InitialGrantAfterMonths after joining, then every CycleMonths.
	BaselineRelativeFromJoin BaselineKind = "RELATIVE_FROM_JOIN"
)

// BaselineRule is a tagged variant; only the fields of Kind are meaningful.
type BaselineRule struct {
	Kind BaselineKind `json:"kind"`

	// ANNIVERSARY
	OffsetMonths int `json:"offsetMonths,omitempty"`

	// FIXED_MONTH_DAY
	Month int `json:"month,omitempty"`
	Day   int `json:"day,omitempty"`

	// RELATIVE_FROM_JOIN
	InitialGrantAfterMonths int `json:"initialGrantAfterMonths,omitempty"`
	CycleMonths             int `json:"cycleMonths,omitempty"`
}

func Anniversary(offsetMonths int) BaselineRule {
	return BaselineRule{Kind: BaselineAnniversary, OffsetMonths: offsetMonths}
}

func FixedMonthDay(month, day int) BaselineRule {
	return BaselineRule{Kind: BaselineFixedMonthDay, Month: month, Day: day}
}

func RelativeFromJoin(initialGrantAfterMonths, cycleMonths int) BaselineRule {
	return BaselineRule{Kind: BaselineRelativeFromJoin, InitialGrantAfterMonths: initialGrantAfterMonths, CycleMonths: cycleMonths}
}

func (r BaselineRule) validate() error {
	switch r.Kind {
	case BaselineAnniversary:
		if r.OffsetMonths < 0 {
			return generic.Validationf("baselineRule.offsetMonths must be >= 0")
		}
	case BaselineFixedMonthDay:
		if r.Month < 1 || r.Month > 12 {
			return generic.Validationf("baselineRule.month must be 1..12, got %d", r.Month)
		}
		if r.Day < 1 || r.Day > 31 {
			return generic.Validationf("baselineRule.day must be 1..31, got %d", r.Day)
		}
	case BaselineRelativeFromJoin:
		if r.InitialGrantAfterMonths < 0 {
			return generic.Validationf("baselineRule.initialGrantAfterMonths must be >= 0")
		}
		if r.CycleMonths < 0 {
			return generic.Validationf("baselineRule.cycleMonths must be >= 0")
		}
	default:
		return generic.Validationf("unknown baselineRule kind %q", r.Kind)
	}
	return nil
}

// =============================================================================
// EXPIRY RULE - how long a lot stays usable
// =============================================================================

type ExpiryKind string

const (
	ExpiryYears   ExpiryKind = "YEARS"
	ExpiryMonths  ExpiryKind = "MONTHS"
	ExpiryEndOfFY ExpiryKind = "END_OF_FY"
)

type ExpiryRule struct {
	Kind        ExpiryKind `json:"kind"`
	Years       int        `json:"years,omitempty"`
	Months      int        `json:"months,omitempty"`
	MonthsValid int        `json:"monthsValid,omitempty"`
}

func ExpireAfterYears(n int) ExpiryRule  { return ExpiryRule{Kind: ExpiryYears, Years: n} }
func ExpireAfterMonths(n int) ExpiryRule { return ExpiryRule{Kind: ExpiryMonths, Months: n} }
func ExpireEndOfFY(monthsValid int) ExpiryRule {
	return ExpiryRule{Kind: ExpiryEndOfFY, MonthsValid: monthsValid}
}

func (r ExpiryRule) validate() error {
	switch r.Kind {
	case ExpiryYears:
		if r.Years < 1 {
			return generic.Validationf("expiry.years must be >= 1")
		}
	case ExpiryMonths:
		if r.Months < 1 {
			return generic.Validationf("expiry.months must be >= 1")
		}
	case ExpiryEndOfFY:
		if r.MonthsValid < 0 {
			return generic.Validationf("expiry.monthsValid must be >= 0")
		}
	default:
		return generic.Validationf("unknown expiry kind %q", r.Kind)
	}
	return nil
}

// =============================================================================
// ROUNDING RULE
// =============================================================================

type RoundingUnit string

const (
	RoundDay  RoundingUnit = "DAY"
	RoundHour RoundingUnit = "HOUR"
)

type RoundingMode string

const (
	ModeFloor RoundingMode = "FLOOR"
	ModeRound RoundingMode = "ROUND"
	ModeCeil  RoundingMode = "CEIL"
)

// DefaultMinutesStep is the HOUR rounding granularity when none is configured.
const DefaultMinutesStep = 30

type RoundingRule struct {
	Unit        RoundingUnit `json:"unit"`
	Mode        RoundingMode `json:"mode"`
	MinutesStep int          `json:"minutesStep,omitempty"`
}

func (r RoundingRule) step() int {
	if r.MinutesStep <= 0 {
		return DefaultMinutesStep
	}
	return r.MinutesStep
}

func (r RoundingRule) validate() error {
	switch r.Unit {
	case RoundDay, RoundHour:
	default:
		return generic.Validationf("unknown rounding unit %q", r.Unit)
	}
	switch r.Mode {
	case ModeFloor, ModeRound, ModeCeil:
	default:
		return generic.Validationf("unknown rounding mode %q", r.Mode)
	}
	if r.MinutesStep < 0 {
		return generic.Validationf("rounding.minutesStep must be >= 0")
	}
	return nil
}

// =============================================================================
// GRANT TABLES
// =============================================================================

// GrantRow grants Days once tenure reaches Years (multiples of 0.5).
type GrantRow struct {
	Years float64 `json:"years"`
	Days  float64 `json:"days"`
}

type FullTimeTable struct {
	Label string     `json:"label"`
	Table []GrantRow `json:"table"`
}

// PartTimeTable is the 比例付与 table for one weekly workday count.
type PartTimeTable struct {
	WeeklyPattern     int        `json:"weeklyPattern"`
	Grants            []GrantRow `json:"grants"`
	MinAnnualWorkdays *int       `json:"minAnnualWorkdays,omitempty"`
	MaxAnnualWorkdays *int       `json:"maxAnnualWorkdays,omitempty"`
}

type PartTimeTables struct {
	// Labels maps weekly pattern ("1".."4") to its display label.
	Labels map[string]string `json:"labels,omitempty"`
	Tables []PartTimeTable   `json:"tables"`
}

// Table returns the table for the weekly pattern, or nil.
func (p PartTimeTables) Table(weekly int) *PartTimeTable {
	for i := range p.Tables {
		if p.Tables[i].WeeklyPattern == weekly {
			return &p.Tables[i]
		}
	}
	return nil
}

func validateRows(name string, rows []GrantRow) error {
	for i, r := range rows {
		if r.Years < 0 || r.Days < 0 {
			return generic.Validationf("%s[%d]: years and days must be >= 0", name, i)
		}
	}
	return nil
}

func sortRows(rows []GrantRow) {
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Years < rows[j].Years })
}

// =============================================================================
// ALERT CONFIG
// =============================================================================

// Checkpoint requires MinConsumedDays to be used MonthsBefore the next grant.
type Checkpoint struct {
	MonthsBefore    int     `json:"monthsBefore"`
	MinConsumedDays float64 `json:"minConsumedDays"`
}

type AlertConfig struct {
	Checkpoints          []Checkpoint `json:"checkpoints"`
	MinGrantDaysForAlert float64      `json:"minGrantDaysForAlert"`
}

// =============================================================================
// APP CONFIG
// =============================================================================

// AppConfig is the full, versioned rule set.
type AppConfig struct {
	Version                string         `json:"version"`
	BaselineRule           BaselineRule   `json:"baselineRule"`
	GrantCycleMonths       int            `json:"grantCycleMonths"`
	Expiry                 ExpiryRule     `json:"expiry"`
	Rounding               RoundingRule   `json:"rounding"`
	MinLegalUseDaysPerYear float64        `json:"minLegalUseDaysPerYear"`
	FullTime               FullTimeTable  `json:"fullTime"`
	PartTime               PartTimeTables `json:"partTime"`
	Alert                  AlertConfig    `json:"alert"`
}

// DefaultVersion is the version of the built-in configuration.
const DefaultVersion = "1.0.0"

// Normalize fills defaults and sorts tables by tenure. It mutates cfg.
func (cfg *AppConfig) Normalize() {
	if cfg.GrantCycleMonths <= 0 {
		cfg.GrantCycleMonths = 12
	}
	if cfg.Rounding.Unit == "" {
		cfg.Rounding.Unit = RoundDay
	}
	if cfg.Rounding.Mode == "" {
		cfg.Rounding.Mode = ModeRound
	}
	if cfg.Rounding.Unit == RoundHour && cfg.Rounding.MinutesStep <= 0 {
		cfg.Rounding.MinutesStep = DefaultMinutesStep
	}
	if cfg.MinLegalUseDaysPerYear <= 0 {
		cfg.MinLegalUseDaysPerYear = 5
	}
	sortRows(cfg.FullTime.Table)
	for i := range cfg.PartTime.Tables {
		sortRows(cfg.PartTime.Tables[i].Grants)
	}
}

// Validate checks structure only; it does not judge legal adequacy.
func (cfg AppConfig) Validate() error {
	if cfg.Version == "" {
		return generic.Validationf("version is required")
	}
	if err := cfg.BaselineRule.validate(); err != nil {
		return err
	}
	if cfg.GrantCycleMonths < 1 {
		return generic.Validationf("grantCycleMonths must be >= 1")
	}
	if err := cfg.Expiry.validate(); err != nil {
		return err
	}
	if err := cfg.Rounding.validate(); err != nil {
		return err
	}
	if err := validateRows("fullTime.table", cfg.FullTime.Table); err != nil {
		return err
	}
	seen := map[int]bool{}
	for _, t := range cfg.PartTime.Tables {
		if t.WeeklyPattern < 1 || t.WeeklyPattern > MaxPartTimeWeeklyDays {
			return generic.Validationf("partTime.tables: weeklyPattern must be 1..%d, got %d", MaxPartTimeWeeklyDays, t.WeeklyPattern)
		}
		if seen[t.WeeklyPattern] {
			return generic.Validationf("partTime.tables: duplicate weeklyPattern %d", t.WeeklyPattern)
		}
		seen[t.WeeklyPattern] = true
		if err := validateRows("partTime.tables.grants", t.Grants); err != nil {
			return err
		}
	}
	for _, c := range cfg.Alert.Checkpoints {
		if c.MonthsBefore < 0 || c.MinConsumedDays < 0 {
			return generic.Validationf("alert.checkpoints: values must be >= 0")
		}
	}
	return nil
}

// cycleMonths is the step between anchors for RELATIVE_FROM_JOIN.
func (cfg AppConfig) cycleMonths() int {
	if cfg.BaselineRule.Kind == BaselineRelativeFromJoin && cfg.BaselineRule.CycleMonths > 0 {
		return cfg.BaselineRule.CycleMonths
	}
	if cfg.GrantCycleMonths > 0 {
		return cfg.GrantCycleMonths
	}
	return 12
}

// DefaultAppConfig returns the statutory configuration (労働基準法第39条).
// Every call returns a fresh copy.
func DefaultAppConfig() AppConfig {
	partTimeGrants := func() []GrantRow {
		return []GrantRow{{Years: 0.5, Days: 7}, {Years: 1.5, Days: 8}, {Years: 2.5, Days: 9}}
	}
	return AppConfig{
		Version:                DefaultVersion,
		BaselineRule:           RelativeFromJoin(6, 12),
		GrantCycleMonths:       12,
		Expiry:                 ExpireAfterYears(2),
		Rounding:               RoundingRule{Unit: RoundDay, Mode: ModeRound},
		MinLegalUseDaysPerYear: 5,
		FullTime: FullTimeTable{
			Label: "通常労働者",
			Table: []GrantRow{
				{Years: 0.5, Days: 10},
				{Years: 1.5, Days: 11},
				{Years: 2.5, Days: 12},
				{Years: 3.5, Days: 14},
				{Years: 4.5, Days: 16},
				{Years: 5.5, Days: 18},
				{Years: 6.5, Days: 20},
			},
		},
		PartTime: PartTimeTables{
			Labels: map[string]string{"1": "週1日", "2": "週2日", "3": "週3日", "4": "週4日"},
			Tables: []PartTimeTable{
				{WeeklyPattern: 1, Grants: partTimeGrants()},
				{WeeklyPattern: 2, Grants: partTimeGrants()},
				{WeeklyPattern: 3, Grants: partTimeGrants()},
				{WeeklyPattern: 4, Grants: partTimeGrants()},
			},
		},
		Alert: AlertConfig{
			Checkpoints: []Checkpoint{
				{MonthsBefore: 3, MinConsumedDays: 5},
				{MonthsBefore: 2, MinConsumedDays: 3},
				{MonthsBefore: 1, MinConsumedDays: 5},
			},
			MinGrantDaysForAlert: 10,
		},
	}
}
