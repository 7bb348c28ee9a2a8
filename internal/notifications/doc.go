// Package notifications delivers scan workflow events via pluggable notifiers.
//
// The default implementation publishes to ntfy using the topic configured in
// config.toml and gracefully degrades to a no-op when notifications are
// disabled. Event methods cover submission outcomes, token expiry, and
// errors so the workflow emits consistent messages without duplicating HTTP
// glue.
package notifications
