package main

import (
	"os"

	"github.com/wonny/ewreturns/cmd/ewreturns/commands"
)

// main is the entry point for the ewreturns CLI
// ⭐ 통합 CLI 진입점: go run ./cmd/ewreturns [command]
func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
