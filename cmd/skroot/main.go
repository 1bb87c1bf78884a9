// Command skroot builds a process and file provenance graph from a
// file-access trace log and answers dependency queries over it.
//
// Usage:
//
//	skroot inspect audit.dit --file out/app
//	skroot serve audit.dit --listen 127.0.0.1:8000
//	skroot export audit.dit --db build.db
package main

import (
	"fmt"
	"os"

	"github.com/roach88/skroot/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
