// Package config defines tripwire settings and loads them from YAML or TOML.
//
// Load applies the file on top of Default and checks process-wide fields.
// Every monitor section carries its own Validate method backed by
// go-playground/validator, so a broken section only disables one monitor.
// ResolveEndpoints implements the auto-detection fallback for endpoint hosts.
package config
