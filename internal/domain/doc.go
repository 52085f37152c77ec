// Package domain defines the core domain types and interfaces.
//
// Concept-oriented files (vote.go, store.go, rate_limit.go, pubsub.go, catalog.go) hold the
// shared types and the contracts adapters implement. Keeping interfaces here prevents
// circular imports between app and adapter packages.
package domain
