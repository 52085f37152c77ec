// Package redis holds the Redis-backed adapters: the shared client with its metrics and
// circuit breaker hooks, the fixed-window rate limit store, and the vote event bus that
// relays events and cache invalidations between instances.
package redis
