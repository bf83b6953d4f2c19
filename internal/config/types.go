package config

// Config 是 alphasim 的主配置载体。标签沿用 toml 命名，
// viper 读取 yaml 后按该标签解码。
type Config struct {
	App           AppConfig           `toml:"app"`
	Data          DataConfig          `toml:"data"`
	Trading       TradingConfig       `toml:"trading"`
	Backtest      BacktestConfig      `toml:"backtest"`
	Store         StoreConfig         `toml:"store"`
	Personalities PersonalitiesConfig `toml:"personalities"`
}

type AppConfig struct {
	Env      string `toml:"env"`
	LogLevel string `toml:"log_level"`
	LogPath  string `toml:"log_path"`
}

// DataConfig 指定行情来源（目录内按 <SYMBOL>.json 存放序列）。
type DataConfig struct {
	Dir string `toml:"dir"`
}

// TradingConfig 控制实时 agent 的资金与手续费默认值。
type TradingConfig struct {
	InitialCapital float64 `toml:"initial_capital"`
	CommissionRate float64 `toml:"commission_rate"`
}

// BacktestConfig 是一次回测运行的默认参数，可被运行请求覆盖。
type BacktestConfig struct {
	Start          string   `toml:"start"` // YYYY-MM-DD
	End            string   `toml:"end"`
	Tickers        []string `toml:"tickers"`
	Personalities  []string `toml:"personalities"` // 为空表示全部内置风格
	InitialCapital float64  `toml:"initial_capital"`
	CommissionRate float64  `toml:"commission_rate"`
	MaxConcurrent  int      `toml:"max_concurrent"`
	OutputDir      string   `toml:"output_dir"`
}

// StoreConfig 指定持久化位置。
type StoreConfig struct {
	StatePath  string `toml:"state_path"`  // agent 快照与行为日志（gorm+sqlite）
	ResultsDir string `toml:"results_dir"` // 回测运行库（runs.db）
}

// PersonalitiesConfig 指定风格参数覆盖文件。
type PersonalitiesConfig struct {
	Path  string `toml:"path"` // 为空时仅用内置表
	Watch bool   `toml:"watch"`
}
