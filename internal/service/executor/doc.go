// Package executor runs the protective action sequence exactly once.
//
// The sequence records the trigger, announces it on the local network,
// waits for the configured delay, dismounts encrypted volumes and powers
// the machine off. Failures of individual steps are logged and never stop
// the remaining steps.
package executor
