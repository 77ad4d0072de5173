// ABOUTME: Build and product identification
// ABOUTME: Reported by the CLI, the remote API and the mDNS advertisement
package version

// Version is overridden at build time with -ldflags "-X .../internal/version.Version=..."
var Version = "0.3.0"

const (
	Product      = "Resonate Radio"
	Manufacturer = "Resonate"
)
