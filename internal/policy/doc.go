// Package policy models the access-control document sieve compiles into an
// XDP program.
//
// # Overview
//
// A policy names a program, optionally a remote target host, the interface
// to attach to, a program type (ip or dns), the action for unmatched traffic
// and up to three lists:
//   - whitelist: addresses whose packets are passed
//   - blacklist: addresses whose packets are dropped
//   - graylist: addresses that are rate-tracked and promoted into the
//     blacklist when they send too fast
//
// Each list becomes an LRU hash map in the generated program, so a full map
// evicts its least recently used entry instead of rejecting inserts.
//
// # Fallbacks
//
// An unsupported defaultAction falls back to [UnrecognizedDefaultAction]
// (pass) while an unsupported list action falls back to
// [UnrecognizedListAction] (drop).
//
// # Files
//
// [LoadFile] reads JSON, TOML, HCL and YAML documents, ignores unknown fields
// and fills missing ones from the defaults in defaults.go. [Encode] writes the
// same formats back out.
package policy
