package clicks

import "time"

const (
	DefaultDelay      = 300 * time.Millisecond
	DefaultClickCount = 2
)

// Config controls how raw clicks are grouped. Delay bounds a window from its
// first click; ClickCount is the group size that counts as a multi-click.
type Config struct {
	Delay      time.Duration `mapstructure:"delay" json:"delay" yaml:"delay"`
	ClickCount int           `mapstructure:"click_count" json:"click_count" yaml:"click_count"`
}

func DefaultConfig() Config {
	return Config{Delay: DefaultDelay, ClickCount: DefaultClickCount}
}

// Merge returns c with every positive field of override applied. Zero or
// negative fields in override leave c's value in place.
func (c Config) Merge(override Config) Config {
	if override.Delay > 0 {
		c.Delay = override.Delay
	}
	if override.ClickCount > 0 {
		c.ClickCount = override.ClickCount
	}
	return c
}
