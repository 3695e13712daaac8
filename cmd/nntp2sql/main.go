// The main package for the nntp2sql executable.
package main

import (
	"os"

	"github.com/example/nntp2sql/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
