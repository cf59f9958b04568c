// Package pool provides a bounded pool of expensive external session
// handles. Handles are created lazily up to a configured maximum,
// loaned out under mutual exclusion, and destroyed when released
// unhealthy, left idle too long, or drained at shutdown.
package pool
