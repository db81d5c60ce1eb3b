package redis

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/oscarprdev/nft-market-sync/logging"
)

var reconnectAttemptsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "marketsync",
		Name:      "redis_reconnect_attempts_total",
		Help:      "Redis reconnection attempts by component and status",
	},
	[]string{"component", "status"},
)

const (
	initialReconnectDelay = 1 * time.Second
	maxReconnectDelay     = 30 * time.Second
	reconnectDelayFactor  = 2
)

// ReconnectionLoop runs connect until it returns nil or the context is
// cancelled, backing off exponentially between attempts. A successful
// connect resets the delay, so a caller can re-enter the loop after a
// dropped subscription and start from the initial delay again.
func ReconnectionLoop(ctx context.Context, logger logging.Logger, component string, connect func(ctx context.Context) error) error {
	delay := initialReconnectDelay

	for {
		err := connect(ctx)
		if err == nil {
			reconnectAttemptsTotal.WithLabelValues(component, "success").Inc()
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		reconnectAttemptsTotal.WithLabelValues(component, "failure").Inc()
		logger.Warn().
			Err(err).
			Dur(logging.FieldDuration, delay).
			Msg("redis connection failed, retrying")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}

		delay *= reconnectDelayFactor
		if delay > maxReconnectDelay {
			delay = maxReconnectDelay
		}
	}
}
