package main

import (
	"errors"
	"fmt"
	"os"

	"globalchat/cmd/globalchat/cmd"
	"globalchat/internal/config"
)

const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
	}
	os.Exit(code)
}

// run executes the command tree and maps failures onto exit codes
func run() (int, error) {
	if err := cmd.Execute(); err != nil {
		if errors.Is(err, config.ErrInvalidConfig) || errors.Is(err, config.ErrInvalidDuration) {
			return exitConfig, err
		}
		return exitRuntime, err
	}
	return exitOK, nil
}
