package main

import (
	"os"

	"github.com/ipor-labs/fusion/internal/app"
)

func main() {
	os.Exit(app.NewRunner().Run(os.Args[1:]))
}
