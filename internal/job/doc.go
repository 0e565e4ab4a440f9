// Package job owns the agent's single execution slot.
//
// A Controller runs at most one shell command at a time as a child process in
// the workspace directory. The child's stdout and stderr share one pipe that
// a writer goroutine drains into the log ring line by line; a reaper
// goroutine waits for the child and records its exit code.
//
// Lifecycle:
//   - Run resets the log ring (starting a new generation), spawns the child in
//     its own process group and replaces the active job without waiting for
//     the previous child. A previous writer still attached to a live pipe
//     keeps draining, but its lines carry the old generation and are dropped.
//   - Interrupt sends SIGTERM to the active job's process group, clears the
//     slot and returns at once. With a kill grace configured, SIGKILL follows
//     if the child is still alive when the grace period expires.
//   - A child that exits on its own stays in the slot (state "completed")
//     until the next Run or Interrupt.
//   - Shutdown terminates the active child and waits for every writer and
//     reaper goroutine.
package job
