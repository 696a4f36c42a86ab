package runconfig

import "time"

// Profile is a saved run definition
// ⭐ SSOT: 실행 프로필 구조는 여기서만
type Profile struct {
	Meta     Meta     `yaml:"meta" json:"meta"`
	Universe Universe `yaml:"universe" json:"universe"`
	Window   Window   `yaml:"window" json:"window"`
	Capital  string   `yaml:"capital" json:"capital"` // decimal string, e.g. "10000"
	Provider string   `yaml:"provider" json:"provider"`
	Modes    []string `yaml:"modes" json:"modes"`
	Engine   Engine   `yaml:"engine" json:"engine"`
	Output   Output   `yaml:"output" json:"output"`

	// parsed by Validate
	start time.Time
	end   time.Time
}

// Meta 메타 정보
type Meta struct {
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description" json:"description"`
}

// Universe lists the instruments, inline or from a file
type Universe struct {
	TickersFile string   `yaml:"tickers_file" json:"tickers_file"`
	Tickers     []string `yaml:"tickers" json:"tickers"`
}

// Window is the historical range, YYYY-MM-DD inclusive
type Window struct {
	Start string `yaml:"start" json:"start"`
	End   string `yaml:"end" json:"end"`
}

// Engine tunes the return engine
type Engine struct {
	PriceField string `yaml:"price_field" json:"price_field"` // close, adj_close; empty picks per mode
	Sweep      string `yaml:"sweep" json:"sweep"`             // amount, per_share
}

// Output controls result sinks
type Output struct {
	Dir     string `yaml:"dir" json:"dir"`
	Persist bool   `yaml:"persist" json:"persist"` // save to Postgres when configured
	Table   bool   `yaml:"table" json:"table"`     // print summary table
}

// Start returns the parsed window start (valid after Validate)
func (p *Profile) Start() time.Time { return p.start }

// End returns the parsed window end (valid after Validate)
func (p *Profile) End() time.Time { return p.end }
