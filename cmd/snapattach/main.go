package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"snapattach/internal/cli"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

// run prints the outcome and the test ID its attachments were filed under,
// so CI logs can be matched against the journal.
func run(args []string) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res, err := cli.Run(ctx, args)
	if err != nil {
		fmt.Fprintln(os.Stderr, "snapattach:", err)
	}
	if res.Outcome != "" {
		fmt.Fprintf(os.Stdout, "%s %s\n", res.Outcome, res.TestID)
	}
	return res.ExitCode
}
