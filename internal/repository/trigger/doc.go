// Package trigger persists the record of the last fired tripwire.
//
// The FileRepository stores and loads the record as protobuf JSON on disk so
// that it can be inspected after the machine comes back up.
package trigger
