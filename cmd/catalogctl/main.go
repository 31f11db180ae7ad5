package main

import (
	"context"
	"os"

	"github.com/charmbracelet/fang"

	"media-catalog/internal/startup"
)

func main() {
	root := newRootCmd()

	// Interrupt cancels the command context, which aborts a local run cleanly
	if err := fang.Execute(
		context.Background(),
		root,
		fang.WithVersion(startup.Version),
		fang.WithNotifySignal(os.Interrupt),
	); err != nil {
		os.Exit(1)
	}
}
