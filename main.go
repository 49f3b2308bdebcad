package main

import (
	"commentpulse/cmd/cmd"
	"commentpulse/internal/logger"
)

func main() {
	logger.Init() // Initialize the logger
	cmd.Execute()
}
