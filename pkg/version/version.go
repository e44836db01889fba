package version

var (
	// Version is the version of x708ups, set by -ldflags at build time.
	Version = "v0.0.0"
	// GitCommit is the commit x708ups was built from.
	GitCommit = "unknown"
)
