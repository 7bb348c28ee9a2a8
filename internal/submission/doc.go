// Package submission turns confirmed items into inventory records one
// create request at a time and tracks a record per item.
//
// An item whose create succeeded is never created again. Follow-up steps
// (extended field update, photo uploads) that fail leave the item in
// partial_success and only those steps are retried. A missing or rejected
// token halts dispatch; items not yet dispatched stay pending and are picked
// up by RetryFailed once the user has logged in again.
package submission
