package config

import (
	"testing"
	"time"
)

func TestLoadPipelineConfigDefaults(t *testing.T) {
	cfg := LoadPipelineConfig()
	if cfg.SearchDelay != 3*time.Second || cfg.MatchDelay != 2*time.Second || cfg.RideDelay != 3*time.Second {
		t.Errorf("delays = %v/%v/%v, want 3s/2s/3s", cfg.SearchDelay, cfg.MatchDelay, cfg.RideDelay)
	}
	if cfg.GatherRadiusM != 100 || cfg.AccessRadiusM != 1000 {
		t.Errorf("radii = %v/%v, want 100/1000", cfg.GatherRadiusM, cfg.AccessRadiusM)
	}
	if cfg.SimulateMembers {
		t.Error("simulation should be off by default")
	}
}

func TestLoadPipelineConfigOverrides(t *testing.T) {
	t.Setenv("TRIP_SEARCH_DELAY", "10ms")
	t.Setenv("GATHER_RADIUS_M", "-5")
	t.Setenv("SIMULATE_MEMBERS", "true")
	t.Setenv("RECRUIT_TICK", "0s")

	cfg := LoadPipelineConfig()
	if cfg.SearchDelay != 10*time.Millisecond {
		t.Errorf("SearchDelay = %v, want 10ms", cfg.SearchDelay)
	}
	if cfg.GatherRadiusM != 100 {
		t.Errorf("negative radius should fall back to default, got %v", cfg.GatherRadiusM)
	}
	if !cfg.SimulateMembers {
		t.Error("SIMULATE_MEMBERS=true not honoured")
	}
	if cfg.RecruitTick != 2*time.Second {
		t.Errorf("zero RecruitTick should fall back to default, got %v", cfg.RecruitTick)
	}
}

func TestParseCampuses(t *testing.T) {
	c := ParseCampuses("Hansung University=37.586,127.012; broken ;Bad=x,1;Far=91,0;Kookmin University=37.6106,126.9966")
	if len(c) != 2 {
		t.Fatalf("parsed %d campuses, want 2: %v", len(c), c)
	}
	p, ok := c.Lookup(" Hansung University ")
	if !ok || p.Lat != 37.586 || p.Lon != 127.012 {
		t.Errorf("Lookup(Hansung University) = %v, %v", p, ok)
	}
	if _, ok := c.Lookup("Nowhere"); ok {
		t.Error("unknown campus should not resolve")
	}
}

func TestRateLimitConfigClamps(t *testing.T) {
	t.Setenv("RATE_LIMIT_CAPACITY", "0")
	t.Setenv("RATE_LIMIT_REFILL_INTERVAL", "2s")
	t.Setenv("RATE_LIMIT_TTL", "1s")

	cfg := LoadRateLimitConfig()
	if cfg.Capacity != 1 {
		t.Errorf("Capacity = %d, want 1", cfg.Capacity)
	}
	if cfg.TTL != 10*time.Second {
		t.Errorf("TTL = %v, want 10s", cfg.TTL)
	}
}
