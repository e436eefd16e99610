package config

import "time"

// PipelineConfig tunes the trip pipeline, the gathering checks and the
// member simulator.
type PipelineConfig struct {
	SearchDelay time.Duration // SEARCHING -> MATCHING
	MatchDelay  time.Duration // MATCHING -> RIDING
	RideDelay   time.Duration // RIDING -> SETTLING

	GatherRadiusM float64
	AccessRadiusM float64
	BalanceMargin float64

	ListRefresh time.Duration

	SimulateMembers bool
	SimulationTick  time.Duration
	RecruitTick     time.Duration // one simulated join or ready per tick
}

// DefaultPipelineConfig returns the values the service ships with.
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		SearchDelay:    3 * time.Second,
		MatchDelay:     2 * time.Second,
		RideDelay:      3 * time.Second,
		GatherRadiusM:  100,
		AccessRadiusM:  1000,
		BalanceMargin:  1.2,
		ListRefresh:    5 * time.Second,
		SimulationTick: time.Second,
		RecruitTick:    2 * time.Second,
	}
}

// LoadPipelineConfig overlays environment values on the defaults.
func LoadPipelineConfig() PipelineConfig {
	def := DefaultPipelineConfig()
	cfg := PipelineConfig{
		SearchDelay:     envDur("TRIP_SEARCH_DELAY", def.SearchDelay),
		MatchDelay:      envDur("TRIP_MATCH_DELAY", def.MatchDelay),
		RideDelay:       envDur("TRIP_RIDE_DELAY", def.RideDelay),
		GatherRadiusM:   envFloat("GATHER_RADIUS_M", def.GatherRadiusM),
		AccessRadiusM:   envFloat("ACCESS_RADIUS_M", def.AccessRadiusM),
		BalanceMargin:   envFloat("BALANCE_MARGIN", def.BalanceMargin),
		ListRefresh:     envDur("ROOM_LIST_REFRESH", def.ListRefresh),
		SimulateMembers: envBool("SIMULATE_MEMBERS", false),
		SimulationTick:  envDur("SIMULATION_TICK", def.SimulationTick),
		RecruitTick:     envDur("RECRUIT_TICK", def.RecruitTick),
	}
	if cfg.GatherRadiusM <= 0 {
		cfg.GatherRadiusM = def.GatherRadiusM
	}
	if cfg.AccessRadiusM <= 0 {
		cfg.AccessRadiusM = def.AccessRadiusM
	}
	if cfg.BalanceMargin < 1 {
		cfg.BalanceMargin = def.BalanceMargin
	}
	if cfg.SimulationTick <= 0 {
		cfg.SimulationTick = def.SimulationTick
	}
	if cfg.RecruitTick <= 0 {
		cfg.RecruitTick = def.RecruitTick
	}
	return cfg
}
