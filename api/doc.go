// Package api defines the request and response payloads of the switchboard
// HTTP surface. Handlers live in the handlers subpackage.
package api
