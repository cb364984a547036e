// Package record owns the life of a finished test: it seals stopped sessions
// into durable TestRecords and implements the crop controller, re-running
// the analysis pipeline over a bounded sub-range without ever mutating the
// recorded trace. Analyses are serialized per record ID.
package record
