// Package logging provides centralized logging utilities for the marketplace
// synchronization service. It defines standardized field names and helper
// functions to ensure consistent structured logging across all components.
package logging

// Standard field name constants for structured logging.
// Using constants ensures consistency and prevents typos across the codebase.
const (
	// Component identification
	FieldComponent = "component"
	FieldService   = "service"

	// Chain/contract fields
	FieldContract    = "contract"
	FieldChainID     = "chain_id"
	FieldTokenID     = "token_id"
	FieldAccount     = "account"
	FieldTxHash      = "tx_hash"
	FieldBlockNumber = "block_number"
	FieldGeneration  = "generation"

	// Metadata fields
	FieldURI        = "uri"
	FieldGatewayURL = "gateway_url"

	// Cache/query fields
	FieldQueryKey   = "query_key"
	FieldCacheKey   = "cache_key"
	FieldVersion    = "version"
	FieldStatus     = "status"
	FieldReason     = "reason"
	FieldSource     = "source"
	FieldCacheLevel = "cache_level"

	// Operation fields
	FieldOperation = "operation"
	FieldResult    = "result"

	// Network/connection fields
	FieldAddr       = "addr"
	FieldListenAddr = "listen_addr"
	FieldRemoteAddr = "remote_addr"
	FieldEndpoint   = "endpoint"

	// Timing fields
	FieldDuration  = "duration"
	FieldTimestamp = "timestamp"

	// Count/size fields
	FieldCount     = "count"
	FieldSkipped   = "skipped"
	FieldBatchSize = "batch_size"

	// Error fields
	FieldErrorType = "error_type"
	FieldAttempt   = "attempt"
)

// Component name constants for the "component" field.
// These identify the source of log messages.
const (
	ComponentGateway          = "contract_gateway"
	ComponentWallet           = "wallet_provider"
	ComponentReader           = "marketplace_reader"
	ComponentResolver         = "metadata_resolver"
	ComponentQueryCache       = "query_cache"
	ComponentCacheMirror      = "cache_mirror"
	ComponentInvalidationBus  = "invalidation_bus"
	ComponentSyncOrchestrator = "sync_orchestrator"
	ComponentAPIServer        = "api_server"
	ComponentWebsocketPush    = "websocket_push"
	ComponentRedisClient      = "redis_client"
	ComponentObservability    = "observability_server"
	ComponentRuntimeMetrics   = "runtime_metrics_collector"
)

// Cache level constants for the "cache_level" field.
const (
	CacheLevelMemory = "memory"
	CacheLevelRedis  = "redis"
)

// Operation result constants for the "result" field.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
	ResultSkipped = "skipped"
	ResultStale   = "stale"
)

// Invalidation source constants for the "source" field.
const (
	SourceEvent  = "event"
	SourceManual = "manual"
	SourceTTL    = "ttl"
	SourcePubSub = "pubsub"
)
