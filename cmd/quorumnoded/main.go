package main

import (
	"fmt"
	"os"

	"github.com/empower1/quorumnode/cmd/quorumnoded/cli"
)

func main() {
	fmt.Println("Starting quorumnoded...")

	if err := cli.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
