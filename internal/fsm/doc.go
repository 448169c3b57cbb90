// Package fsm provides a minimal finite-state executor: a directed graph of
// named transitions over named states, driven one transition at a time by a
// single loop.
//
// Handlers return a tagged outcome (Continue, Done, Park, Fail) instead of
// invoking the next transition themselves, which keeps execution strictly
// sequential and makes the resume point unambiguous after a crash. The
// engine knows nothing about scheduling or persistence; owners commit their
// own checkpoints inside handlers before returning Continue.
package fsm
