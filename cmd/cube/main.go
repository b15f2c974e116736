package main

import (
	"os"

	"github.com/jrsteele09/cube-auth/cmd/cube/app"
)

func main() {
	if err := app.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
