package config

import "fmt"

// validate 对配置进行基础校验。
func validate(c *Config) error {
	if err := c.Market.validate(); err != nil {
		return err
	}
	if err := c.Engine.validate(); err != nil {
		return err
	}
	if err := c.Risk.validate(); err != nil {
		return err
	}
	if err := c.Decision.validate(); err != nil {
		return err
	}
	return nil
}

func (m *MarketConfig) validate() error {
	if m.CycleIntervalSec < 10 {
		return fmt.Errorf("market.cycle_interval_seconds must be >= 10")
	}
	return nil
}

func (e *EngineConfig) validate() error {
	if e.MinTrainingSamples > e.MaxTrainingSamples {
		return fmt.Errorf("engine.min_training_samples must not exceed max_training_samples")
	}
	if e.SequenceLength < 2 {
		return fmt.Errorf("engine.sequence_length must be >= 2")
	}
	return nil
}

func (r *RiskConfig) validate() error {
	if r.MaxRiskPerTrade >= 1 {
		return fmt.Errorf("risk.max_risk_per_trade must be a fraction < 1")
	}
	if r.MaxPortfolioRisk < r.MaxRiskPerTrade {
		return fmt.Errorf("risk.max_portfolio_risk must be >= max_risk_per_trade")
	}
	return nil
}

func (d *DecisionConfig) validate() error {
	if d.BaseThreshold >= 1 {
		return fmt.Errorf("decision.base_threshold must be a fraction < 1")
	}
	return nil
}
