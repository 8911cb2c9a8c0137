// Command orrery builds and serves content-addressed widget bundles for
// MCP clients.
package main

import "github.com/orreryhq/orrery/internal/cli"

func main() {
	cli.Execute()
}
