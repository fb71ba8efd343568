// Package handlers implements the HTTP handlers for the switchboard API:
// conversation handoffs, settings, message history, asset generation, and
// health probes.
package handlers
