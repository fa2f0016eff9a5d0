package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/ScribeLabsAI/ScribeMi/internal/mi"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		if errors.Is(err, mi.ErrNotAuthenticated) || errors.Is(err, mi.ErrAuthenticationFailed) {
			fmt.Fprintln(os.Stderr, "Hint: run 'scribemi login' to start a new session.")
		}

		exitOnError(err)
	}
}
