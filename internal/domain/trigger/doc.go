// Package trigger contains the shared vocabulary of tripwire: which monitor
// fired (Source), the one-shot Event it emits, and the Record persisted once
// the protective sequence starts.
package trigger
