// Package notify shows desktop notifications and the full-screen alert.
//
// Both surfaces are best effort: helper programs are started without
// waiting and failures are only logged.
package notify
