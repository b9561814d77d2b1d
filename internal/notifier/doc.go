// Package notifier fans one message out to many chats.
//
// Each recipient gets exactly one send attempt bounded by a per-send
// timeout. A failed recipient is reported in the Result and logged; it never
// stops delivery to the others. Completed broadcasts are kept in a short
// in-memory history, published on the event bus and, when a store is
// configured, appended to the audit log.
package notifier
