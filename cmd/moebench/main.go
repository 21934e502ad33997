package main

import (
	"fmt"
	"os"

	"github.com/moe-bench/moe-bench/cmd/moebench/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
