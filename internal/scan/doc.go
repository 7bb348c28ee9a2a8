// Package scan defines the data model shared by the capture-and-submit
// wizard: wizard statuses and their routes, captured images, AI candidate
// items, confirmed items, and per-item submission records.
//
// Images travel as File values. File.Data is never serialized implicitly;
// the session package owns the encode/decode boundary and the previews
// package owns display handles.
package scan
