// Package workflow drives the scan wizard from location selection through
// capture, detection, review, and batch submission.
//
// The Machine owns the wizard state and is the only component that changes
// its status. It delegates candidate walking to review.Pipeline, batch
// creation to submission.Engine, and crash recovery to a session
// persister that receives a snapshot after every mutation. Network calls
// (detection, correction, duplicate lookups, submission) run without the
// state lock held; results are applied only if the wizard was not reset in
// the meantime.
//
// Navigation is observable through OnStatusChanged, which pairs each status
// change with the route that should render it.
package workflow
