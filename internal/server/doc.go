// Package server wires the HTTP surface: the token-protected collaborator
// API for creating orders and reporting transitions, the customer-facing
// websocket subscription endpoint, and the health/metrics endpoints.
package server
