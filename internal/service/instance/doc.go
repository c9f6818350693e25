// Package instance keeps a single armed tripwire per machine.
package instance
