package app

import "errors"

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	DocumentPath string // .graph file
	Target       string // node identity to evaluate; empty means the last node

	Backend   string // backend name; empty selects the best available
	LogFormat string
	LogLevel  string
	Workers   int
}

func NewConfig(cfg Config) (*Config, error) {
	if cfg.DocumentPath == "" {
		return nil, errors.New("DocumentPath is a required configuration field and cannot be empty")
	}
	return &cfg, nil
}
