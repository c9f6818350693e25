// Package power wraps the protective system tools: dismounting encrypted
// volumes and forcing a power-off.
package power
