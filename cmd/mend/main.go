package main

import (
	"os"

	"github.com/fixkit/mend/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
