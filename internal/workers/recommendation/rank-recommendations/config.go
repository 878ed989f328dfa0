// internal/workers/recommendation/rank-recommendations/config.go
package rankrecommendations

import "time"

type Config struct {
	Timeout time.Duration
}

func LoadConfig() *Config {
	return &Config{
		Timeout: 30 * time.Second,
	}
}
