package fare

import (
	"math/rand/v2"
	"testing"
)

func TestEstimateDistance(t *testing.T) {
	tests := []struct {
		name   string
		meters float64
		want   int
	}{
		// 3800 + 0 + int(int(0)*0.1) = 3800 -> 4370
		{"zero", 0, 4370},
		// duration 240s -> +24 -> 3824 -> 4397
		{"at base distance", 2000, 4397},
		// 3800 + 300 + 30 = 4130 -> 4749
		{"just over base", 2500, 4749},
		{"fractional meters truncate", 2500.9, 4749},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := EstimateDistance(tt.meters); got != tt.want {
				t.Errorf("EstimateDistance(%v) = %d, want %d", tt.meters, got, tt.want)
			}
		})
	}
}

func TestCheckBalance(t *testing.T) {
	tests := []struct {
		name          string
		balance, cost int
		wantOK        bool
		wantRequired  int
		wantShortfall int
	}{
		{"sufficient", 1500, 1200, true, 1440, 0},
		{"short", 1000, 1200, false, 1440, 440},
		{"exactly required", 1440, 1200, true, 1440, 0},
		{"free ride", 0, 0, true, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, required, shortfall := CheckBalance(tt.balance, tt.cost)
			if ok != tt.wantOK || required != tt.wantRequired || shortfall != tt.wantShortfall {
				t.Errorf("CheckBalance(%d, %d) = (%v, %d, %d), want (%v, %d, %d)",
					tt.balance, tt.cost, ok, required, shortfall, tt.wantOK, tt.wantRequired, tt.wantShortfall)
			}
		})
	}
}

func TestActualTotalStaysInBounds(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	for _, est := range []int{0, 1, 7, 4749, 12345, 99999} {
		lo := float64(est) * 0.9
		hi := float64(est) * 1.1
		for _, u := range []float64{0.9, 1.0, 1.1, 0.5, 3} {
			got := ActualTotal(est, u)
			if float64(got) < lo || float64(got) > hi {
				t.Errorf("ActualTotal(%d, %v) = %d outside [%v, %v]", est, u, got, lo, hi)
			}
		}
		for i := 0; i < 1000; i++ {
			u := MinVariance + rng.Float64()*(MaxVariance-MinVariance)
			got := ActualTotal(est, u)
			if float64(got) < lo || float64(got) > hi {
				t.Fatalf("ActualTotal(%d, %v) = %d outside [%v, %v]", est, u, got, lo, hi)
			}
		}
	}
}

func TestUniformVarianceRange(t *testing.T) {
	v := NewUniformVariance()
	for i := 0; i < 1000; i++ {
		u := v.Draw()
		if u < MinVariance || u > MaxVariance {
			t.Fatalf("Draw() = %v outside [%v, %v]", u, MinVariance, MaxVariance)
		}
	}
}

func TestPerPerson(t *testing.T) {
	if got := PerPerson(4749, 3); got != 1583 {
		t.Errorf("PerPerson(4749, 3) = %d, want 1583", got)
	}
	if got := PerPerson(100, 0); got != 100 {
		t.Errorf("PerPerson(100, 0) = %d, want 100", got)
	}
}
