package vacation

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/warp/yukyu/generic"
)

// MaxPartTimeWeeklyDays is the largest weekly workday count that still gets
// proportional (part-time) grants.
const MaxPartTimeWeeklyDays = 4

type patternKind uint8

const (
	patternNone patternKind = iota
	patternFullTime
	patternPartTime
)

// Pattern selects the grant table for an employee: full time ("A") or part
// time with 1..4 scheduled days a week ("B-1".."B-4"). The zero value means
// no pattern, which grants nothing.
type Pattern struct {
	kind   patternKind
	weekly int
}

func FullTime() Pattern { return Pattern{kind: patternFullTime} }

func PartTime(weeklyDays int) (Pattern, error) {
	if weeklyDays < 1 || weeklyDays > MaxPartTimeWeeklyDays {
		return Pattern{}, generic.Validationf("part-time weekly days must be 1..%d, got %d", MaxPartTimeWeeklyDays, weeklyDays)
	}
	return Pattern{kind: patternPartTime, weekly: weeklyDays}, nil
}

// ParsePattern decodes the stored code. Empty input is the zero Pattern.
func ParsePattern(s string) (Pattern, error) {
	s = strings.TrimSpace(s)
	switch {
	case s == "":
		return Pattern{}, nil
	case s == "A":
		return FullTime(), nil
	case strings.HasPrefix(s, "B-"):
		n, err := strconv.Atoi(strings.TrimPrefix(s, "B-"))
		if err != nil {
			return Pattern{}, generic.Validationf("invalid pattern %q", s)
		}
		return PartTime(n)
	default:
		return Pattern{}, generic.Validationf("invalid pattern %q", s)
	}
}

func (p Pattern) IsZero() bool     { return p.kind == patternNone }
func (p Pattern) IsFullTime() bool { return p.kind == patternFullTime }
func (p Pattern) IsPartTime() bool { return p.kind == patternPartTime }

// WeeklyDays is 0 unless the pattern is part time.
func (p Pattern) WeeklyDays() int { return p.weekly }

// String returns the stored code ("A", "B-3" or "").
func (p Pattern) String() string {
	switch p.kind {
	case patternFullTime:
		return "A"
	case patternPartTime:
		return fmt.Sprintf("B-%d", p.weekly)
	default:
		return ""
	}
}

// Label returns the display label from the config tables.
func (p Pattern) Label(cfg AppConfig) string {
	switch p.kind {
	case patternFullTime:
		return cfg.FullTime.Label
	case patternPartTime:
		if l, ok := cfg.PartTime.Labels[strconv.Itoa(p.weekly)]; ok {
			return l
		}
		return fmt.Sprintf("週%d日", p.weekly)
	default:
		return ""
	}
}

// Rows returns the grant table the pattern selects, or nil.
func (p Pattern) Rows(cfg AppConfig) []GrantRow {
	switch p.kind {
	case patternFullTime:
		return cfg.FullTime.Table
	case patternPartTime:
		if t := cfg.PartTime.Table(p.weekly); t != nil {
			return t.Grants
		}
	}
	return nil
}

// =============================================================================
// PATTERN RESOLUTION
// =============================================================================

// PatternFromEmployeeType maps the employment category to a pattern.
// Part-timers return the zero Pattern so the weekly schedule decides.
func PatternFromEmployeeType(employeeType string) Pattern {
	switch strings.TrimSpace(employeeType) {
	case "正社員", "契約社員", "派遣社員":
		return FullTime()
	default:
		return Pattern{}
	}
}

// PatternFromWeekly maps scheduled workdays per week to a pattern.
func PatternFromWeekly(weeklyDays int) Pattern {
	switch {
	case weeklyDays >= 1 && weeklyDays <= MaxPartTimeWeeklyDays:
		return Pattern{kind: patternPartTime, weekly: weeklyDays}
	case weeklyDays > MaxPartTimeWeeklyDays:
		return FullTime()
	default:
		return Pattern{}
	}
}

// EffectivePattern resolves the pattern used for grants: the explicit default,
// else the employment category, else the weekly schedule.
func EffectivePattern(emp Employee) Pattern {
	if !emp.DefaultPattern.IsZero() {
		return emp.DefaultPattern
	}
	if p := PatternFromEmployeeType(emp.EmployeeType); !p.IsZero() {
		return p
	}
	return PatternFromWeekly(emp.WeeklyPattern)
}
