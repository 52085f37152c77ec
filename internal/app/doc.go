// Package app provides the application service layer.
//
// VoteService orchestrates casting and reading votes: validation, rate limiting,
// the vote store, cache invalidation and event publication. It depends on domain
// interfaces, not concrete implementations.
package app
