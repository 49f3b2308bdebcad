package cmd

import "commentpulse/cmd/handlers"

// Execute runs the CLI. Command construction lives in the handlers package.
func Execute() {
	handlers.Execute()
}
