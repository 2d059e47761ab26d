// Package shutdown coordinates graceful daemon teardown.
//
// A Handler collects cleanup hooks during startup and runs them in
// reverse registration order once a termination signal (SIGINT,
// SIGTERM) arrives or Trigger is called, each under a shared grace
// timeout. Hook errors are collected, not short-circuited, so every
// component gets its chance to close.
package shutdown
