// Package server implements the core HTTP and WebSocket server functionality
// for Connectify, a room-based chat relay.
//
// The implementation is organized into specialized files for configuration,
// presence tracking, hub management, clients, cross-process fanout, routing,
// and HTTP handlers to keep the codebase maintainable and testable as the
// project grows.
package server
