// =============================================================================
// Deployment Configuration Search
// =============================================================================
// A fixed-seed genetic search over per-agent resource allocations. Every
// call is self-contained: identical constraints always yield the same
// recommendation.

package optimizer

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"sort"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("optimizer")

// Search parameters
const (
	PopulationSize = 50
	Generations    = 100
	MutationRate   = 0.1
	Seed           = 42

	// InfeasibleFitness is assigned to candidates that exceed a resource cap.
	InfeasibleFitness = -1000.0
)

var batchSizes = []int{8, 16, 32, 64}

// Constraints bound the search. Zero fields take the defaults 8 CPU,
// 16384 MB, 100 ms and 3 agents.
type Constraints struct {
	MaxCPU        float64 `json:"max_cpu" yaml:"max_cpu"`
	MaxMemory     float64 `json:"max_memory" yaml:"max_memory"`
	TargetLatency float64 `json:"target_latency" yaml:"target_latency"`
	AgentCount    int     `json:"agent_count" yaml:"agent_count"`
}

// WithDefaults fills absent fields.
func (c Constraints) WithDefaults() Constraints {
	if c.MaxCPU == 0 {
		c.MaxCPU = 8
	}
	if c.MaxMemory == 0 {
		c.MaxMemory = 16384
	}
	if c.TargetLatency == 0 {
		c.TargetLatency = 100
	}
	if c.AgentCount == 0 {
		c.AgentCount = 3
	}
	return c
}

// Validate rejects negative resource caps.
func (c Constraints) Validate() error {
	switch {
	case c.MaxCPU < 0:
		return fmt.Errorf("max_cpu must be positive, got %v", c.MaxCPU)
	case c.MaxMemory < 0:
		return fmt.Errorf("max_memory must be positive, got %v", c.MaxMemory)
	case c.TargetLatency < 0:
		return fmt.Errorf("target_latency must be positive, got %v", c.TargetLatency)
	case c.AgentCount < 0:
		return fmt.Errorf("agent_count must be positive, got %d", c.AgentCount)
	}
	return nil
}

// Config is one candidate deployment.
type Config struct {
	CPUPerAgent    float64 `json:"cpu_per_agent"`
	MemoryPerAgent float64 `json:"memory_per_agent"`
	Replicas       int     `json:"replicas"`
	BatchSize      int     `json:"batch_size"`
	Concurrency    int     `json:"concurrency"`
}

// Alternative is a runner-up candidate with its score.
type Alternative struct {
	Config
	FitnessScore float64 `json:"fitness_score"`
}

// Result of a search.
type Result struct {
	RecommendedConfig Config        `json:"recommended_config"`
	FitnessScore      float64       `json:"fitness_score"`
	Generations       int           `json:"generations"`
	Alternatives      []Alternative `json:"alternatives"`

	// BestHistory is the best fitness seen up to and including each
	// generation.
	BestHistory []float64 `json:"-"`
}

type scored struct {
	cfg     Config
	fitness float64
}

type search struct {
	c   Constraints
	rng *rand.Rand
}

// Optimize runs the genetic search for the given constraints.
func Optimize(ctx context.Context, constraints Constraints) (*Result, error) {
	if err := constraints.Validate(); err != nil {
		return nil, err
	}
	c := constraints.WithDefaults()

	_, span := tracer.Start(ctx, "optimizer.search")
	defer span.End()
	span.SetAttributes(
		attribute.Float64("max_cpu", c.MaxCPU),
		attribute.Float64("max_memory", c.MaxMemory),
		attribute.Int("agent_count", c.AgentCount),
	)

	s := &search{c: c, rng: rand.New(rand.NewPCG(Seed, Seed))}

	population := make([]Config, PopulationSize)
	for i := range population {
		population[i] = s.random()
	}

	var best Config
	bestFitness := math.Inf(-1)
	history := make([]float64, 0, Generations)

	for gen := 0; gen < Generations; gen++ {
		ranked := s.rank(population)
		if ranked[0].fitness > bestFitness {
			bestFitness = ranked[0].fitness
			best = ranked[0].cfg
		}
		history = append(history, bestFitness)

		survivors := make([]Config, 0, len(ranked)/2)
		for _, r := range ranked[:len(ranked)/2] {
			survivors = append(survivors, r.cfg)
		}

		next := append(make([]Config, 0, PopulationSize), survivors...)
		for len(next) < PopulationSize {
			p1 := survivors[s.rng.IntN(len(survivors))]
			p2 := survivors[s.rng.IntN(len(survivors))]
			next = append(next, s.mutate(s.crossover(p1, p2)))
		}
		population = next
	}

	final := s.rank(population)
	alternatives := make([]Alternative, 0, 3)
	for _, r := range final[1:min(4, len(final))] {
		alternatives = append(alternatives, Alternative{Config: r.cfg, FitnessScore: round(r.fitness, 4)})
	}

	span.SetAttributes(attribute.Float64("fitness", bestFitness))
	return &Result{
		RecommendedConfig: best,
		FitnessScore:      round(bestFitness, 4),
		Generations:       Generations,
		Alternatives:      alternatives,
		BestHistory:       history,
	}, nil
}

// rank scores the population and orders it by descending fitness.
// Equal scores keep population order.
func (s *search) rank(population []Config) []scored {
	out := make([]scored, len(population))
	for i, cfg := range population {
		out[i] = scored{cfg: cfg, fitness: Fitness(cfg, s.c)}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].fitness > out[j].fitness })
	return out
}

func (s *search) cpu() float64 {
	return round(s.uniform(0.25, s.c.MaxCPU/float64(s.c.AgentCount)), 2)
}

func (s *search) memory() float64 {
	return round(s.uniform(256, s.c.MaxMemory/float64(s.c.AgentCount)), 0)
}

func (s *search) replicas() int {
	return 1 + s.rng.IntN(s.c.AgentCount)
}

func (s *search) batch() int {
	return batchSizes[s.rng.IntN(len(batchSizes))]
}

func (s *search) concurrency() int {
	return 1 + s.rng.IntN(10)
}

func (s *search) uniform(lo, hi float64) float64 {
	return lo + (hi-lo)*s.rng.Float64()
}

func (s *search) random() Config {
	return Config{
		CPUPerAgent:    s.cpu(),
		MemoryPerAgent: s.memory(),
		Replicas:       s.replicas(),
		BatchSize:      s.batch(),
		Concurrency:    s.concurrency(),
	}
}

// crossover takes every gene from either parent with equal probability.
func (s *search) crossover(p1, p2 Config) Config {
	child := p1
	if s.rng.Float64() >= 0.5 {
		child.CPUPerAgent = p2.CPUPerAgent
	}
	if s.rng.Float64() >= 0.5 {
		child.MemoryPerAgent = p2.MemoryPerAgent
	}
	if s.rng.Float64() >= 0.5 {
		child.Replicas = p2.Replicas
	}
	if s.rng.Float64() >= 0.5 {
		child.BatchSize = p2.BatchSize
	}
	if s.rng.Float64() >= 0.5 {
		child.Concurrency = p2.Concurrency
	}
	return child
}

// mutate redraws each gene from its initial distribution with
// probability MutationRate.
func (s *search) mutate(cfg Config) Config {
	if s.rng.Float64() < MutationRate {
		cfg.CPUPerAgent = s.cpu()
	}
	if s.rng.Float64() < MutationRate {
		cfg.MemoryPerAgent = s.memory()
	}
	if s.rng.Float64() < MutationRate {
		cfg.Replicas = s.replicas()
	}
	if s.rng.Float64() < MutationRate {
		cfg.BatchSize = s.batch()
	}
	if s.rng.Float64() < MutationRate {
		cfg.Concurrency = s.concurrency()
	}
	return cfg
}

func round(x float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(x*p) / p
}
