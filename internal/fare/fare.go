// Package fare estimates taxi fares, splits them between members and
// decides whether a balance can cover a share.
//
// Every integer conversion truncates toward zero, in the order the
// original fare table applies them: base, distance and time surcharges
// are summed as integers and the 15% multiplier is applied once at the end.
package fare

import (
	"math"
	"math/rand/v2"
	"sync"

	"github.com/iliyamo/ridesplit/internal/geo"
)

const (
	BaseFare            = 3800
	BaseDistanceMeters  = 2000
	DistanceUnitMeters  = 132
	DistanceUnitFare    = 100
	SpeedMetersPerHour  = 30000.0
	TimeSurchargeRate   = 0.1
	FinalMultiplier     = 1.15
	DefaultBalanceRatio = 1.2

	// MaxDeposit bounds a single wallet deposit.
	MaxDeposit = 1_000_000

	MinVariance = 0.9
	MaxVariance = 1.1
)

// EstimateDistance returns the estimated fare for a trip of the given
// length in meters.
func EstimateDistance(meters float64) int {
	distance := int(meters)
	if distance < 0 {
		distance = 0
	}
	duration := int(float64(distance) / SpeedMetersPerHour * 3600)

	total := BaseFare
	if distance > BaseDistanceMeters {
		total += (distance - BaseDistanceMeters) / DistanceUnitMeters * DistanceUnitFare
	}
	total += int(float64(duration) * TimeSurchargeRate)
	return int(float64(total) * FinalMultiplier)
}

// Estimate returns the estimated fare between two points.
func Estimate(start, end geo.Point) int {
	return EstimateDistance(geo.Distance(start, end))
}

// PerPerson splits total between members, truncating.
func PerPerson(total, members int) int {
	if members <= 0 {
		return total
	}
	return total / members
}

// Required returns the balance needed to take a seat that costs
// costPerPerson, using the default margin.
func Required(costPerPerson int) int {
	return RequiredWithMargin(costPerPerson, DefaultBalanceRatio)
}

// RequiredWithMargin is Required with an explicit margin.
func RequiredWithMargin(costPerPerson int, margin float64) int {
	return int(float64(costPerPerson) * margin)
}

// CheckBalance reports whether balance covers costPerPerson plus the
// default margin, and the shortfall when it does not.
func CheckBalance(balance, costPerPerson int) (ok bool, required, shortfall int) {
	return CheckBalanceWithMargin(balance, costPerPerson, DefaultBalanceRatio)
}

// CheckBalanceWithMargin is CheckBalance with an explicit margin.
func CheckBalanceWithMargin(balance, costPerPerson int, margin float64) (ok bool, required, shortfall int) {
	required = RequiredWithMargin(costPerPerson, margin)
	if balance < required {
		return false, required, required - balance
	}
	return true, required, 0
}

// ActualTotal applies the variance factor u to the estimate. The result
// always lies in [0.9*estimated, 1.1*estimated] whatever u is.
func ActualTotal(estimated int, u float64) int {
	if math.IsNaN(u) {
		u = 1
	}
	u = min(max(u, MinVariance), MaxVariance)
	total := int(float64(estimated) * u)

	lo := (9*estimated + 9) / 10
	hi := 11 * estimated / 10
	return min(max(total, lo), hi)
}

// Variance draws the settlement multiplier.
type Variance interface {
	Draw() float64
}

// UniformVariance draws uniformly from [MinVariance, MaxVariance].
type UniformVariance struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewUniformVariance seeds a UniformVariance from the runtime source.
func NewUniformVariance() *UniformVariance {
	return &UniformVariance{rng: rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))}
}

func (v *UniformVariance) Draw() float64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return MinVariance + v.rng.Float64()*(MaxVariance-MinVariance)
}

// FixedVariance always returns the same multiplier.
type FixedVariance float64

func (f FixedVariance) Draw() float64 { return float64(f) }
