// Package chatflow composes the conversation runtime: webhook ingestion with
// signature verification and delivery dedupe, graph-driven conversation
// routing, 24h messaging-window tracking, and rate-limited outbound dispatch.
//
// NewService wires the pieces from a Config plus functional options. With a
// persistence client the stores resolve to the SQL repositories; without one
// everything runs on in-process stores, which is the mode the tests use.
// NewFacade layers go-command handlers on top of a Service for dispatcher
// based integration.
package chatflow
