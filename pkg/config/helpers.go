package config

import "time"

func secondsOr(v, fallback int) time.Duration {
	if v <= 0 {
		v = fallback
	}
	return time.Duration(v) * time.Second
}

func intOr(v, fallback int) int {
	if v <= 0 {
		return fallback
	}
	return v
}
