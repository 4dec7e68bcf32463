package version

// Version is the current release of depscan.
const Version = "0.3.0"
