// Package relay holds the message types exchanged over the remote control
// channel: commands posted by operators and replies sent back by monitors.
package relay
