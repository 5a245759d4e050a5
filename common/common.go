// Package common holds process-wide settings shared by the vigil binaries.
package common

var (
	// PackageName is used as the metrics namespace and default log service.
	PackageName = "vigil"

	// Version is set at build time via -ldflags.
	Version = "dev"
)
