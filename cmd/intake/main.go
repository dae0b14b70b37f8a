package main

import (
	"os"

	"github.com/bnema/order-intake-bot/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
