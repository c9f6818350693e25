//go:build !linux && !darwin

package power

func syncFilesystems() {}
