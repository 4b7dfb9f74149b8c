// Package delivery moves events from the host into the durable store and
// from the store to the collector.
//
// Admission (AddEventToStore) merges an event over the session's default
// annotations, writes it as a "new" row and keeps the open-session
// snapshot current. A flush claims up to BatchSize rows with a fresh
// token, uploads them and resolves the claim from the transport outcome:
//
//	OK, Created          delete
//	NoResponse, Timeout  release back to "new"
//	anything else        delete (a definitive answer, even a rejection)
//
// Every method runs on the scheduler goroutine, so flushes never overlap.
package delivery
