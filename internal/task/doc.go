// Package task implements the asynchronous scraping-job engine: a
// concurrent task store with atomic status transitions, a runner that
// executes one job against a borrowed browser session with guaranteed
// release, and a manager facade that schedules submissions onto a
// bounded worker capacity and reaps stale records.
package task
