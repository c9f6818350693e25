// Package ctl posts operator commands to the relay and prints the replies.
package ctl
