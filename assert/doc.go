// Package assert provides internal invariant checks that panic on violation.
// Builds tagged with assertions_disabled compile the checks away.
package assert
