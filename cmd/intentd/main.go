package main

import (
	"os"

	"intentd/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
