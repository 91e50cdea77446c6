// Package client is the consumer-side tracker: it holds one websocket
// connection to the tracking service, watches a set of orders, and surfaces
// updates and connection events on a single channel. Lost connections are
// redialed with exponential backoff and all watched orders resubscribed.
package client
