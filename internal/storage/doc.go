// Package storage keeps an append-only audit trail of subscriber changes and
// reminder deliveries.
//
// Subscribers themselves are never persisted; the audit trail is for operators.
package storage
