package optimizer

import "math"

// Feasible reports whether the total allocation of cfg fits the caps.
func Feasible(cfg Config, c Constraints) bool {
	replicas := float64(cfg.Replicas)
	return cfg.CPUPerAgent*replicas <= c.MaxCPU && cfg.MemoryPerAgent*replicas <= c.MaxMemory
}

// Fitness scores a candidate; higher is better. Infeasible candidates
// score InfeasibleFitness. c must already carry defaults.
func Fitness(cfg Config, c Constraints) float64 {
	if !Feasible(cfg, c) {
		return InfeasibleFitness
	}
	replicas := float64(cfg.Replicas)
	totalCPU := cfg.CPUPerAgent * replicas

	throughput := cfg.CPUPerAgent * float64(cfg.Concurrency) * replicas

	memoryFactor := math.Max(cfg.MemoryPerAgent/1024, 0.1)
	batchFactor := math.Max(float64(cfg.BatchSize)/16, 0.5)
	latency := math.Max(10, c.TargetLatency/memoryFactor/batchFactor)
	latencyPenalty := math.Max(0, latency-c.TargetLatency) * 0.5

	efficiency := 1 - (totalCPU/math.Max(c.MaxCPU, 1))*0.3

	return throughput*efficiency - latencyPenalty
}
