package ratelimit

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// rateLimitAllowed counts clicks that passed the limiter.
	rateLimitAllowed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ipgen",
			Subsystem: "ratelimit",
			Name:      "allowed_total",
			Help:      "Total number of actions allowed by the rate limiter",
		},
		[]string{"key"},
	)

	// rateLimitDenied counts clicks denied, including the one that
	// triggered a block.
	rateLimitDenied = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ipgen",
			Subsystem: "ratelimit",
			Name:      "denied_total",
			Help:      "Total number of actions denied by the rate limiter",
		},
		[]string{"key"},
	)

	// rateLimitBlocks counts transitions into the blocked state.
	rateLimitBlocks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ipgen",
			Subsystem: "ratelimit",
			Name:      "blocks_total",
			Help:      "Total number of cooldowns started by the rate limiter",
		},
		[]string{"key"},
	)
)
