package main

import (
	"fmt"
	"os"

	"github.com/denniswebb/fwkeeper/internal/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "fwkeeper: %v\n", err)
		os.Exit(1)
	}
}
