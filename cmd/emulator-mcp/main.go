package main

import (
	"context"
	"os"

	"github.com/FreePeak/emulator-mcp-server/internal/interfaces/cli"
)

func main() {
	if err := cli.Execute(context.Background()); err != nil {
		os.Exit(1)
	}
}
