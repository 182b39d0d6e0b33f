package domain

import "time"

const (
	DefaultPlatform                   = "mac"
	DefaultTierTimeoutSeconds         = 15
	DefaultValidationTimeoutSeconds   = 10
	DefaultIdleHorizonDays            = 30
	DefaultCleanupIntervalSeconds     = 3600
	DefaultRediscoverSeconds          = 300
	DefaultFailureRingCapacity        = 20
	DefaultObservabilityListenAddress = "127.0.0.1:9187"
)

// DefaultIdleHorizon is the duration form of the idle eviction horizon.
const DefaultIdleHorizon = DefaultIdleHorizonDays * 24 * time.Hour
