package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"rollguard/internal/cli"
	"rollguard/internal/platform/config"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := cli.NewRootCommand(config.FromEnv()).ExecuteContext(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, "rollguard:", err)
	}
	stop()
	os.Exit(cli.GetExitCode(err))
}
