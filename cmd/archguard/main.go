package main

import (
	"os"

	"archguard/internal/ui/cli"
)

func main() {
	os.Exit(cli.Run(os.Args[1:]))
}
