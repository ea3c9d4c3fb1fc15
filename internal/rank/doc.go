// Package rank drives the control interfaces of one rank.
//
// Ownership boundary:
// - per-lane context (color, cached target and structure, groups, enabled units)
// - the frame executor: commit, bounded completion polling, fault latching
// - the selector and structure caches that suppress redundant frames
// - the discovery, reset and color recovery exchanges
// - configuration commands and the bring-up sequence built on them
//
// Every exchange runs under the rank lock. Callers obtain a *Tx from Rank.Do;
// all lane state is reachable only through it, so nested protocol steps
// share the held lock instead of re-entering it.
package rank
