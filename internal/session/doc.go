// Package session persists the scan wizard so it can be resumed after the
// process exits, crashes, or loses its inventory token.
//
// A snapshot is a JSON document stored under one fixed key in a small
// key/value table. Image bytes are kept out of the document: each file is
// written once to a content-addressed BlobStore (SQLite table or an S3
// bucket) and the snapshot carries a manifest from file ID to SHA-256.
//
// Writes go through a single writer goroutine so snapshots land in the
// order they were taken and a write never overlaps the previous one.
// Failures are logged and swallowed; recovery is best effort and treats
// any inconsistency as "no session".
package session
