package config

import "strings"

// Config 是 premia 的主配置载体。
type Config struct {
	App      AppConfig      `toml:"app"`
	Market   MarketConfig   `toml:"market"`
	Engine   EngineConfig   `toml:"engine"`
	Risk     RiskConfig     `toml:"risk"`
	Decision DecisionConfig `toml:"decision"`
	Replay   ReplayConfig   `toml:"replay"`
}

type AppConfig struct {
	Env          string `toml:"env"`
	LogLevel     string `toml:"log_level"`
	HTTPAddr     string `toml:"http_addr"`
	LogPath      string `toml:"log_path"`
	DataDir      string `toml:"data_dir"`
	TunablesPath string `toml:"tunables_path"`
}

type MarketConfig struct {
	ChainURL            string `toml:"chain_url"`
	FetchTimeoutSeconds int    `toml:"fetch_timeout_seconds"`
	CycleIntervalSec    int    `toml:"cycle_interval_seconds"`
	HistoryDir          string `toml:"history_dir"`
}

type EngineConfig struct {
	MinTrainingSamples int    `toml:"min_training_samples"`
	MaxTrainingSamples int    `toml:"max_training_samples"`
	SequenceLength     int    `toml:"sequence_length"`
	MetaMinSamples     int    `toml:"meta_min_samples"`
	SequenceMinBuffer  int    `toml:"sequence_min_buffer"`
	SequenceBufferCap  int    `toml:"sequence_buffer_cap"`
	SequenceEpochs     int    `toml:"sequence_epochs"`
	SnapshotDB         string `toml:"snapshot_db"`
}

type RiskConfig struct {
	MaxRiskPerTrade  float64 `toml:"max_risk_per_trade"`
	MaxPortfolioRisk float64 `toml:"max_portfolio_risk"`
	MaxOpenPositions int     `toml:"max_open_positions"`
	LotSize          int     `toml:"lot_size"`
}

type DecisionConfig struct {
	AccountValue   float64 `toml:"account_value"`
	UpdateEvery    int     `toml:"update_every"`
	TrainEvery     int     `toml:"train_every"`
	FeedbackEvery  int     `toml:"feedback_every"`
	BaseThreshold  float64 `toml:"base_threshold"`
	SignalEndpoint string  `toml:"signal_endpoint"`
}

type ReplayConfig struct {
	OutputDir string `toml:"output_dir"`
	ReportDir string `toml:"report_dir"`
}

type keySet map[string]struct{}

func (k keySet) mark(path string) {
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return
	}
	k[path] = struct{}{}
}

func (k keySet) isSet(path string) bool {
	if k == nil {
		return false
	}
	_, ok := k[path]
	return ok
}

// fieldDefault 描述单个字段的默认值设置规则。
type fieldDefault struct {
	key   string
	need  func() bool
	apply func()
}
