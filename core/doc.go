// Package core defines the domain model, collaborator contracts, error
// taxonomy, and configuration surface shared by every chatflow package.
//
// Everything stateful lives behind small interfaces (FlowStore,
// ConversationStateStore, WindowStore, ...) so callers can wire the
// bun-backed stores from store/sql, the in-memory fallbacks, or their own
// implementations.
package core
