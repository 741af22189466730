package vacation

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/warp/yukyu/generic"
)

// =============================================================================
// GRANT-AMOUNT RESOLVER
// =============================================================================

// YearsSinceJoin is tenure in half-year steps: floor(months/6)/2, counting
// calendar months only.
func YearsSinceJoin(join, at generic.TimePoint) float64 {
	months := generic.CalendarMonthsBetween(join, at)
	if months < 0 {
		return 0
	}
	return float64(months/6) / 2
}

// ChooseGrantDays picks the largest table row with row.Years <= years. No
// pattern, an unknown part-time table or a tenure below the first row grant 0.
func ChooseGrantDays(cfg AppConfig, p Pattern, years float64) decimal.Decimal {
	best := decimal.Zero
	bestYears := -1.0
	for _, row := range p.Rows(cfg) {
		if row.Years <= years && row.Years >= bestYears {
			best = generic.Days(row.Days)
			bestYears = row.Years
		}
	}
	return best
}

// LatestTableGrant is the grant the pattern's table gives at the employee's
// tenure on date.
func LatestTableGrant(cfg AppConfig, emp Employee, on generic.TimePoint) decimal.Decimal {
	return ChooseGrantDays(cfg, EffectivePattern(emp), YearsSinceJoin(emp.JoinDate, on))
}

// =============================================================================
// EXPIRY
// =============================================================================

// ComputeExpiry returns the last usable day of a lot granted on grantDate.
func ComputeExpiry(grantDate generic.TimePoint, rule ExpiryRule) generic.TimePoint {
	switch rule.Kind {
	case ExpiryMonths:
		return grantDate.AddMonths(rule.Months).AddDays(-1)
	case ExpiryEndOfFY:
		return generic.EndOfYear(grantDate.Year() + rule.MonthsValid/12)
	default:
		years := rule.Years
		if years <= 0 {
			years = 2
		}
		return grantDate.AddYears(years).AddDays(-1)
	}
}

// =============================================================================
// DEDUP KEY
// =============================================================================

// DedupKey identifies a lot by everything that determines it. Two generator
// runs that compute the same lot produce the same key.
func DedupKey(employeeID string, grantDate generic.TimePoint, days decimal.Decimal, expiry generic.TimePoint, configVersion string) string {
	raw := fmt.Sprintf("%s:%s:%s:%s:%s", employeeID, grantDate, days.String(), expiry, configVersion)
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
