package main

import (
	"fmt"
	"os"

	"github.com/lupppig/bita/cmd"
	apperrors "github.com/lupppig/bita/internal/errors"
)

const (
	EXIT_SUCCESS = iota
	EXIT_FAILURE
	EXIT_CONFIG
	EXIT_CORRUPT
)

func main() {
	if err := cmd.Execute(); err != nil {
		exitOnError(err)
	}

	os.Exit(EXIT_SUCCESS)
}

func exitOnError(err error) {
	if err == nil {
		return
	}

	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	if hint := apperrors.HintOf(err); hint != "" {
		fmt.Fprintf(os.Stderr, "hint: %s\n", hint)
	}
	os.Exit(exitCode(err))
}

func exitCode(err error) int {
	switch apperrors.TypeOf(err) {
	case apperrors.TypeConfig:
		return EXIT_CONFIG
	case apperrors.TypeFormat, apperrors.TypeIntegrity:
		return EXIT_CORRUPT
	default:
		return EXIT_FAILURE
	}
}
