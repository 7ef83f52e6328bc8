// Package push receives asynchronous payment confirmations from a pub/sub
// transport.
//
// A Transport delivers batches of Messages published on a named channel.
// The Listener subscribes on behalf of exactly one pending identifier,
// filters every batch down to that identifier, and forwards matches. The
// relevance and subscription checks run at delivery time, so a message
// already buffered inside the transport is dropped if Unsubscribe has been
// called by the time it is handed over.
//
// Implementations:
//   - Bus: in-process fan-out, used by tests and single-binary deployments
//   - RedisTransport: Redis SUBSCRIBE/PUBLISH
package push
