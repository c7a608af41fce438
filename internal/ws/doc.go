// Package ws provides WebSocket connection handling and message routing
// for relay hubs.
//
// The package implements:
//   - Client: one live connection with a bounded outbound queue
//   - Registry: the live connection set plus the identity map
//   - Hub: classification, routing and best-effort delivery
//   - Handler: upgrade plus the per-connection read and write pumps
//
// Delivery is at-most-once. A failed send to one recipient never stops
// delivery to the others, and a read error only unregisters its own client.
package ws
