package config

import "strings"

// 默认值常量
const (
	defaultAppEnv        = "dev"
	defaultAppLogLevel   = "info"
	defaultAppHTTPAddr   = ":9985"
	defaultAppLogPath    = "data/logs/premia.log"
	defaultAppDataDir    = "data"
	defaultTunablesPath  = "configs/tunables.yaml"
	defaultFetchTimeout  = 10
	defaultCycleInterval = 60
	defaultHistoryDir    = "data/history"
	defaultMinSamples    = 30
	defaultMaxSamples    = 2000
	defaultSeqLen        = 10
	defaultMetaMin       = 50
	defaultSeqMinBuffer  = 100
	defaultSeqBufferCap  = 500
	defaultSeqEpochs     = 5
	defaultSnapshotDB    = "data/db/premia.db"
	defaultMaxRiskTrade  = 0.02
	defaultMaxPortRisk   = 0.06
	defaultMaxOpenPos    = 1
	defaultLotSize       = 50
	defaultAccountValue  = 500000
	defaultUpdateEvery   = 5
	defaultTrainEvery    = 25
	defaultFeedbackEvery = 50
	defaultBaseThreshold = 0.40
	defaultReplayOutDir  = "data/replay"
	defaultReportDir     = "data/reports"
)

// applyDefaults 为所有子配置应用默认值。
func (c *Config) applyDefaults(keys keySet) {
	c.App.applyDefaults(keys)
	c.Market.applyDefaults(keys)
	c.Engine.applyDefaults(keys)
	c.Risk.applyDefaults(keys)
	c.Decision.applyDefaults(keys)
	c.Replay.applyDefaults(keys)
}

func (a *AppConfig) applyDefaults(keys keySet) {
	if a == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("app.env", &a.Env, defaultAppEnv),
		stringFieldDefault("app.log_level", &a.LogLevel, defaultAppLogLevel),
		stringFieldDefault("app.http_addr", &a.HTTPAddr, defaultAppHTTPAddr),
		stringFieldDefault("app.log_path", &a.LogPath, defaultAppLogPath),
		stringFieldDefault("app.data_dir", &a.DataDir, defaultAppDataDir),
		stringFieldDefault("app.tunables_path", &a.TunablesPath, defaultTunablesPath),
	)
}

func (m *MarketConfig) applyDefaults(keys keySet) {
	if m == nil {
		return
	}
	applyFieldDefaults(keys,
		fieldDefault{
			key:   "market.fetch_timeout_seconds",
			need:  func() bool { return m.FetchTimeoutSeconds <= 0 },
			apply: func() { m.FetchTimeoutSeconds = defaultFetchTimeout },
		},
		fieldDefault{
			key:   "market.cycle_interval_seconds",
			need:  func() bool { return m.CycleIntervalSec <= 0 },
			apply: func() { m.CycleIntervalSec = defaultCycleInterval },
		},
		stringFieldDefault("market.history_dir", &m.HistoryDir, defaultHistoryDir),
	)
}

func (e *EngineConfig) applyDefaults(keys keySet) {
	if e == nil {
		return
	}
	applyFieldDefaults(keys,
		fieldDefault{
			key:   "engine.min_training_samples",
			need:  func() bool { return e.MinTrainingSamples <= 0 },
			apply: func() { e.MinTrainingSamples = defaultMinSamples },
		},
		fieldDefault{
			key:   "engine.max_training_samples",
			need:  func() bool { return e.MaxTrainingSamples <= 0 },
			apply: func() { e.MaxTrainingSamples = defaultMaxSamples },
		},
		fieldDefault{
			key:   "engine.sequence_length",
			need:  func() bool { return e.SequenceLength <= 0 },
			apply: func() { e.SequenceLength = defaultSeqLen },
		},
		fieldDefault{
			key:   "engine.meta_min_samples",
			need:  func() bool { return e.MetaMinSamples <= 0 },
			apply: func() { e.MetaMinSamples = defaultMetaMin },
		},
		fieldDefault{
			key:   "engine.sequence_min_buffer",
			need:  func() bool { return e.SequenceMinBuffer <= 0 },
			apply: func() { e.SequenceMinBuffer = defaultSeqMinBuffer },
		},
		fieldDefault{
			key:   "engine.sequence_buffer_cap",
			need:  func() bool { return e.SequenceBufferCap <= 0 },
			apply: func() { e.SequenceBufferCap = defaultSeqBufferCap },
		},
		fieldDefault{
			key:   "engine.sequence_epochs",
			need:  func() bool { return e.SequenceEpochs <= 0 },
			apply: func() { e.SequenceEpochs = defaultSeqEpochs },
		},
		stringFieldDefault("engine.snapshot_db", &e.SnapshotDB, defaultSnapshotDB),
	)
}

func (r *RiskConfig) applyDefaults(keys keySet) {
	if r == nil {
		return
	}
	applyFieldDefaults(keys,
		fieldDefault{
			key:   "risk.max_risk_per_trade",
			need:  func() bool { return r.MaxRiskPerTrade <= 0 },
			apply: func() { r.MaxRiskPerTrade = defaultMaxRiskTrade },
		},
		fieldDefault{
			key:   "risk.max_portfolio_risk",
			need:  func() bool { return r.MaxPortfolioRisk <= 0 },
			apply: func() { r.MaxPortfolioRisk = defaultMaxPortRisk },
		},
		fieldDefault{
			key:   "risk.max_open_positions",
			need:  func() bool { return r.MaxOpenPositions <= 0 },
			apply: func() { r.MaxOpenPositions = defaultMaxOpenPos },
		},
		fieldDefault{
			key:   "risk.lot_size",
			need:  func() bool { return r.LotSize <= 0 },
			apply: func() { r.LotSize = defaultLotSize },
		},
	)
}

func (d *DecisionConfig) applyDefaults(keys keySet) {
	if d == nil {
		return
	}
	applyFieldDefaults(keys,
		fieldDefault{
			key:   "decision.account_value",
			need:  func() bool { return d.AccountValue <= 0 },
			apply: func() { d.AccountValue = defaultAccountValue },
		},
		fieldDefault{
			key:   "decision.update_every",
			need:  func() bool { return d.UpdateEvery <= 0 },
			apply: func() { d.UpdateEvery = defaultUpdateEvery },
		},
		fieldDefault{
			key:   "decision.train_every",
			need:  func() bool { return d.TrainEvery <= 0 },
			apply: func() { d.TrainEvery = defaultTrainEvery },
		},
		fieldDefault{
			key:   "decision.feedback_every",
			need:  func() bool { return d.FeedbackEvery <= 0 },
			apply: func() { d.FeedbackEvery = defaultFeedbackEvery },
		},
		fieldDefault{
			key:   "decision.base_threshold",
			need:  func() bool { return d.BaseThreshold <= 0 },
			apply: func() { d.BaseThreshold = defaultBaseThreshold },
		},
	)
}

func (r *ReplayConfig) applyDefaults(keys keySet) {
	if r == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("replay.output_dir", &r.OutputDir, defaultReplayOutDir),
		stringFieldDefault("replay.report_dir", &r.ReportDir, defaultReportDir),
	)
}

// Helper functions

func applyFieldDefaults(keys keySet, defs ...fieldDefault) {
	for _, def := range defs {
		if def.apply == nil {
			continue
		}
		if def.key != "" && keys.isSet(def.key) {
			continue
		}
		if def.need != nil && !def.need() {
			continue
		}
		def.apply()
	}
}

func stringFieldDefault(key string, target *string, def string) fieldDefault {
	return fieldDefault{
		key: key,
		need: func() bool {
			return target != nil && strings.TrimSpace(*target) == ""
		},
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}
