// Package aggregate implements the approximate-quantile aggregate functions.
//
// Two function families are provided, both backed by the bounded reservoir
// sample in internal/sample:
//
//   - Quantile: one configured level, one result value per group
//   - Quantiles: one or more levels, one result block per group appended to
//     an offsets + flat values array column
//
// Both follow the engine's aggregation lifecycle:
//
//	configure -> accumulate -> combine -> (serialize / deserialize) -> finalize
//
// Configuration is the only step that can fail: a wrong parameter count or a
// level outside [0, 1] aborts setup before any row is processed. Accumulate,
// combine and finalize never fail; serialize and deserialize return errors
// only for I/O and decoding faults.
//
// Group state lives in an Arena owned by the caller. Aggregators receive
// *GroupState handles and never allocate or free state themselves.
//
// Aggregators are instantiated per (argument kind, result kind) pair. The
// result kind is float64 when the function "returns as float", otherwise it
// equals the argument kind; the choice is baked into the generic
// instantiation so the hot accumulation path carries no runtime branching.
package aggregate
