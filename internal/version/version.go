// Package version carries the build identity stamped in via -ldflags.
package version

var (
	// Version is the release version.
	Version = "dev"
	// GitSHA is the git commit the binary was built from.
	GitSHA = "unknown"
	// BuildTime is the build timestamp.
	BuildTime = "unknown"
)

// String renders the full build identity for startup logs and -version.
func String() string {
	return Version + " (" + GitSHA + ", built " + BuildTime + ")"
}
