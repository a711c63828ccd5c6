/*
Package resilience guards outbound calls with a circuit breaker.

The experiment persistence client wraps every upsert in a Breaker so that a
store which keeps failing is not hammered by widgets on every headline
change. Calls are never retried here; a rejected call fails fast with
ErrCircuitOpen or ErrTooManyRequests.

	breaker := resilience.New("experiment-store", resilience.Settings{
		ReadyToTrip: func(c resilience.Counts) bool { return c.ConsecutiveFailures >= 5 },
	})
	err := breaker.Do(ctx, func(ctx context.Context) error {
		return client.Call(ctx)
	})

States move Closed -> Open after ReadyToTrip, Open -> HalfOpen after
Timeout, and HalfOpen -> Closed after MaxRequests consecutive successes. Any
half-open failure reopens the breaker.
*/
package resilience
