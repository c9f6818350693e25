// Package supervisor arms the selected tripwire monitors.
//
// Each monitor runs in its own goroutine with its own bus handle. Monitors
// whose health depends on a remote service are probed: after a short grace
// window, any of them that already stopped is left out of the active set.
package supervisor
