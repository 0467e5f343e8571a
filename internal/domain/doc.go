// Package domain holds the canonical data shapes shared by the ingestion,
// streaming, and reporting services, plus the pure functions that normalize
// vendor sensor payloads into them.
//
// The WeatherLink API reports rainfall as a cumulative counter that only
// grows until the sensor resets it, typically at local midnight. Nothing in
// the feed says "it stopped raining"; rain events are inferred downstream by
// diffing consecutive counter values per station. Everything here is careful
// about two things: picking the right rain field out of the payload (the API
// has grown several naming conventions across firmware versions and across
// its current/historic modes), and never letting NaN or Inf escape into the
// pipeline as a number.
//
// Types:
//
//   - Reading: one normalized sample for one station.
//   - RawMessage: an unprocessed transport message plus its commit handle.
//   - RainEvent: the persisted rain-event row.
//   - EventPatch: a partial update to an event row.
//
// All normalization functions are pure transforms of their input payloads.
package domain
