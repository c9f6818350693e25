// Package monitor implements the tripwire monitors.
//
// Each monitor watches one activation condition and, once the condition is
// observed, sends a single trigger event on its bus handle and returns.
// Monitors never run protective actions themselves.
package monitor
