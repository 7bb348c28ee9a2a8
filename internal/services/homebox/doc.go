// Package homebox talks to the Homebox inventory REST API.
//
// Client wraps the raw endpoints (login, locations, labels, items and
// attachments) with retry on transient failures. Inventory adapts the
// client to the submission engine's create, details and attachment steps.
// TokenStore caches the bearer token and its expiry in the session KV so a
// resumed session can keep submitting without another login.
// DuplicateChecker looks up existing items by serial number.
package homebox
