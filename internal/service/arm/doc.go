// Package arm implements the tripwire command: it arms the selected
// monitors, waits for the first trigger and runs the protective actions.
package arm
