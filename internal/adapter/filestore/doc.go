// Package filestore implements domain.VoteStore on an in-memory ledger document that is
// optionally persisted as a single JSON file.
//
// Reads load an immutable snapshot and never lock. Writers for the same product are
// serialized by a striped mutex; writers for different products join a group commit in
// which one goroutine applies the batch to a copy of the snapshot, writes the file once
// through an atomic rename, and only then publishes the new snapshot.
package filestore
