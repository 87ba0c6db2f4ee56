package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/solatis/rulelint/cmd/rulelint/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		if !errors.Is(err, cmd.ErrValidationFailed) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(1)
	}
}
