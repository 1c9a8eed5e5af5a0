// Package main is the entry point for the voicectl CLI.
//
// Usage:
//
//	voicectl [flags] <command>
//
// Commands:
//
//	run      - Join an interview room and stream audio until interrupted
//	backend  - Run the local mock interview backend
//	version  - Show version information
package main

import (
	"fmt"
	"os"

	"github.com/prajwalbangera/interview-voice/cmd/voicectl/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
