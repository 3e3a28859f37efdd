// Package knowledge is the client side of the shared knowledge store.
// Completed task outputs are put here so later tasks can query them back as
// context. Only the put/query contract lives in this repository; similarity
// search itself belongs to the external store.
package knowledge
