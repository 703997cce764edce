package main

import (
	"fmt"
	"os"

	"github.com/zjy-dev/coveralls/cmd/coveralls/app"
)

func main() {
	if err := app.NewCoverallsCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
