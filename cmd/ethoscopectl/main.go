// Command ethoscopectl is an interactive admin shell for an
// ethoscope-node daemon's HTTP API: list devices, inspect one, or send an
// instruction.
//
// Usage:
//
//	ethoscopectl [flags]
//
// Flags:
//
//	-addr string   Base URL of the ethoscope-node HTTP API (default "http://localhost:9999")
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/chzyer/readline"
)

var addr = flag.String("addr", "http://localhost:9999", "Base URL of the ethoscope-node HTTP API")

func main() {
	os.Exit(run())
}

func run() int {
	flag.Parse()

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "ethoscopectl> ",
		HistoryFile:     historyPath(),
		AutoComplete:    newCompleter(),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to start readline: %v\n", err)
		return 1
	}
	defer rl.Close()

	client := newAPIClient(*addr)
	shell := &Shell{rl: rl, client: client}
	return shell.Run()
}

func historyPath() string {
	dir, err := os.UserHomeDir()
	if err != nil {
		return ".ethoscopectl_history"
	}
	return dir + "/.ethoscopectl_history"
}

func newCompleter() *readline.PrefixCompleter {
	return readline.NewPrefixCompleter(
		readline.PcItem("list"),
		readline.PcItem("show"),
		readline.PcItem("instruction"),
		readline.PcItem("flag"),
		readline.PcItem("help"),
		readline.PcItem("quit"),
	)
}
