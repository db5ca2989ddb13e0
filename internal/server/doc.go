// Package server is the WebSocket transport of the gateway.
//
// A Hub owns the live connections and fans events out to the authenticated
// ones. Each Client runs a read pump, which reports connect, message and
// disconnect events to an EventHandler, and a write pump, which writes one
// JSON envelope per frame. Server exposes /ws and /health over net/http, and
// Config holds the environment-driven settings for the whole process.
package server
