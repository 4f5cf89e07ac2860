package routing

import "fmt"

// Strategy selects the weighting profile used to score eligible models.
type Strategy string

const (
	StrategyCostOptimized    Strategy = "cost_optimized"
	StrategyLatencyOptimized Strategy = "latency_optimized"
	StrategyQualityOptimized Strategy = "quality_optimized"
	StrategyBalanced         Strategy = "balanced"
)

type weights struct {
	cost        float64
	latency     float64
	quality     float64
	reliability float64
}

var strategyWeights = map[Strategy]weights{
	StrategyCostOptimized:    {cost: 0.5, latency: 0.2, quality: 0.2, reliability: 0.1},
	StrategyLatencyOptimized: {cost: 0.1, latency: 0.5, quality: 0.2, reliability: 0.2},
	StrategyQualityOptimized: {cost: 0.1, latency: 0.1, quality: 0.6, reliability: 0.2},
	StrategyBalanced:         {cost: 0.25, latency: 0.25, quality: 0.3, reliability: 0.2},
}

// ParseStrategy validates a wire or config value.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case StrategyCostOptimized, StrategyLatencyOptimized, StrategyQualityOptimized, StrategyBalanced:
		return Strategy(s), nil
	}
	return "", fmt.Errorf("unknown strategy %q (valid: cost_optimized, latency_optimized, quality_optimized, balanced)", s)
}
