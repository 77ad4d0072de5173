// ABOUTME: Entry point for the Resonate internet radio player
// ABOUTME: Hands control to the cobra command tree
package main

import (
	"os"

	"github.com/Resonate-Protocol/resonate-radio/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
