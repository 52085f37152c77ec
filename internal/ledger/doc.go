// Package ledger holds the storage-independent core of the vote store: the toggle
// state machine and the JSON document used by the file-backed implementation.
package ledger
