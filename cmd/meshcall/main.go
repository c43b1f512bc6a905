package main

import (
	"github.com/AmanBang/meshcall/internal/cli"
	"github.com/AmanBang/meshcall/internal/logging"
)

func main() {
	// Initialize logging
	logging.Init()
	cli.Execute()
}
