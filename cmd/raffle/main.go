package main

import (
	"fmt"
	"os"

	"raffle/internal/raffle"
)

// Exit statuses. 2 is left to usage errors reported by the command line
// parser and missing flags.
const (
	exitFailure       = 1
	exitValidation    = 3
	exitResource      = 4
	exitDependency    = 5
	exitAuthorization = 6
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "raffle: %v\n", err)
		os.Exit(exitCode(err))
	}
}

func exitCode(err error) int {
	switch raffle.KindOf(err) {
	case raffle.KindValidation:
		return exitValidation
	case raffle.KindResource:
		return exitResource
	case raffle.KindDependency:
		return exitDependency
	case raffle.KindAuthorization:
		return exitAuthorization
	default:
		return exitFailure
	}
}
