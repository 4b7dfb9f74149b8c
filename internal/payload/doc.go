// Package payload holds the event object model and its two encodings.
//
// An Object is a flat map of event fields: strings, integers, floats and
// booleans. Objects are stored on disk as Core Deterministic CBOR and sent
// to the collector as canonical JSON (sorted keys, NFC strings, no HTML
// escaping), so the same event always produces the same bytes.
//
// The package also defines the event categories and the domain-separated
// BLAKE3 hash used to fingerprint cached remote config.
package payload
