package geo

import (
	"math"
	"testing"
)

var campus = Point{Lat: 37.58616528349631, Lon: 127.01280516488525}

func TestDistance(t *testing.T) {
	tests := []struct {
		name    string
		a, b    Point
		want    float64
		epsilon float64
	}{
		{"same point", campus, campus, 0, 0},
		{"one degree of latitude", Point{0, 0}, Point{1, 0}, 111195, 5},
		{"seoul to busan", Point{37.5665, 126.9780}, Point{35.1796, 129.0756}, 325000, 2000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Distance(tt.a, tt.b)
			if math.Abs(got-tt.want) > tt.epsilon {
				t.Errorf("Distance() = %.3f, want %.3f ± %.0f", got, tt.want, tt.epsilon)
			}
			if back := Distance(tt.b, tt.a); back != got {
				t.Errorf("Distance is not symmetric: %.3f vs %.3f", got, back)
			}
		})
	}
}

func TestNorthRoundTrips(t *testing.T) {
	for _, m := range []float64{50, 100, 150, 1000} {
		p := North(campus, m)
		if got := Distance(campus, p); got != m {
			t.Errorf("Distance(campus, North(campus, %v)) = %v", m, got)
		}
	}
}

func TestWithinBoundaryInclusive(t *testing.T) {
	if !Within(campus, North(campus, 100), 100) {
		t.Error("point exactly at the radius should be within")
	}
	if Within(campus, North(campus, 100.01), 100) {
		t.Error("point 1cm beyond the radius should be outside")
	}
}

func TestOffsetIsApproximate(t *testing.T) {
	for _, bearing := range []float64{0, math.Pi / 4, math.Pi / 2, math.Pi} {
		p := Offset(campus, 800, bearing)
		d := Distance(campus, p)
		if math.Abs(d-800) > 10 {
			t.Errorf("Offset(800m, %.2f rad) landed %.1fm away", bearing, d)
		}
	}
}

func TestToward(t *testing.T) {
	from := Offset(campus, 1000, math.Pi/3)
	half := Toward(from, campus, 0.5)
	d := Distance(half, campus)
	if math.Abs(d-500) > 5 {
		t.Errorf("halfway point is %.1fm from target, want ~500", d)
	}
	if Toward(from, campus, 1.5) != campus {
		t.Error("fraction above 1 should land on the target")
	}
}

func TestValid(t *testing.T) {
	if !campus.Valid() {
		t.Error("campus should be valid")
	}
	for _, p := range []Point{{91, 0}, {0, 181}, {math.NaN(), 0}} {
		if p.Valid() {
			t.Errorf("%v should be invalid", p)
		}
	}
}
