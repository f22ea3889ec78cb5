/*
Package resilience provides a circuit breaker for outbound calls.

# Overview

The export pipeline POSTs span batches to a collector that may be down for
minutes at a time. Retrying every batch against a dead endpoint wastes the
export loop's time budget; the breaker fails batches fast while the
collector is unreachable and probes it again after a timeout.

# Usage

	breaker := resilience.New("trace-collector", resilience.Config{
		FailureThreshold: 5,
		MaxProbes:        2,
		Interval:         60 * time.Second,
		Cooldown:         30 * time.Second,
		OnStateChange: func(name string, from, to resilience.State) {
			logger.Warn("circuit state changed", zap.String("to", to.String()))
		},
	})

	err := breaker.Do(func() error {
		return client.Post(batch)
	})

# States

- Closed: normal operation, requests pass through
- Open: endpoint unavailable, requests fail immediately
- Half-Open: probing recovery, limited requests allowed

State transitions:

	Closed --[failures]-> Open --[timeout]-> Half-Open --[successes]-> Closed
	                                           |
	                                    [failure]
	                                           |
	                                           v
	                                         Open
*/
package resilience
