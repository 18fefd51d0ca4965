// Command conductor indexes a project, picks the best-suited coding agent for
// a task, and drives single tasks or multi-step flows through it. It provides
// a CLI (via Cobra) and an optional HTTP server.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/54b3r/conductor-go/cmd/conductor/commands"
)

func main() {
	if err := commands.NewRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
