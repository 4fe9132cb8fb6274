// cmd/gateway/main.go
package main

import (
	"os"

	"geofence-gateway/internal/cli"
)

func main() {
	if err := cli.RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
