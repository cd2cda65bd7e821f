package config

import (
	"strings"
	"time"
)

// HoldConfig describes how seat holds are stored and bounded.
//
//	HOLD_STORE       – "memory" (single process) or "redis" (shared)
//	HOLD_TTL         – lifetime of a fresh hold, default 5m
//	HOLD_MAX_TOTAL   – cap on createdAt+extensions, default 15m
//	HOLD_KEY_PREFIX  – Redis hash prefix, one hash per showing
type HoldConfig struct {
	Store     string
	TTL       time.Duration
	MaxTotal  time.Duration
	KeyPrefix string
}

func LoadHoldConfig() HoldConfig {
	h := HoldConfig{
		Store:     strings.ToLower(envStr("HOLD_STORE", "redis")),
		TTL:       envDur("HOLD_TTL", 5*time.Minute),
		MaxTotal:  envDur("HOLD_MAX_TOTAL", 15*time.Minute),
		KeyPrefix: envStr("HOLD_KEY_PREFIX", "holds"),
	}
	if h.TTL <= 0 {
		h.TTL = 5 * time.Minute
	}
	if h.MaxTotal < h.TTL {
		h.MaxTotal = h.TTL
	}
	return h
}
