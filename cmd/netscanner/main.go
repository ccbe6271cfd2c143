// Command netscanner is a concurrent TCP port scanner for single devices,
// address ranges and subnets.
package main

import (
	"github.com/anstrom/netscanner/cmd/cli"
)

// Build information - set by ldflags during build.
var (
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

func main() {
	cli.SetVersion(version, commit, buildTime)
	cli.Execute()
}
