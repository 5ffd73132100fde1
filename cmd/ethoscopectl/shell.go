package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/chzyer/readline"
)

// Shell drives the interactive command loop.
type Shell struct {
	rl     *readline.Instance
	client *apiClient
}

// Run reads commands until EOF, an interrupt, or an explicit quit.
func (s *Shell) Run() int {
	s.printHelp()

	for {
		line, err := s.rl.Readline()
		if err == readline.ErrInterrupt {
			continue
		}
		if err == io.EOF {
			return 0
		}
		if err != nil {
			fmt.Printf("readline error: %v\n", err)
			return 1
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		fields := strings.Fields(line)
		cmd := strings.ToLower(fields[0])
		args := fields[1:]

		switch cmd {
		case "help", "?":
			s.printHelp()
		case "list", "ls":
			s.cmdList()
		case "show":
			s.cmdShow(args)
		case "instruction", "send":
			s.cmdInstruction(args)
		case "quit", "exit", "q":
			return 0
		default:
			fmt.Printf("unknown command: %s (type 'help' for commands)\n", cmd)
		}
	}
}

func (s *Shell) printHelp() {
	fmt.Println(`
ethoscopectl commands:
  list                        list every device the node currently knows about
  show <id>                   show one device's status and backup progress
  instruction <id> <name>     send an instruction (e.g. start, stop, poweroff)
  help                        show this help
  quit                        exit`)
}

func (s *Shell) cmdList() {
	devices, err := s.client.listDevices()
	if err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}
	if len(devices) == 0 {
		fmt.Println("no devices")
		return
	}
	for _, d := range devices {
		fmt.Printf("%-16s %-16s %v\n", d["id"], d["ip"], d["status"])
	}
}

func (s *Shell) cmdShow(args []string) {
	if len(args) != 1 {
		fmt.Println("usage: show <id>")
		return
	}
	dev, err := s.client.showDevice(args[0])
	if err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}
	out, _ := json.MarshalIndent(dev, "", "  ")
	fmt.Println(string(out))
}

func (s *Shell) cmdInstruction(args []string) {
	if len(args) != 2 {
		fmt.Println("usage: instruction <id> <name>")
		return
	}
	if err := s.client.sendInstruction(args[0], args[1]); err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}
	fmt.Println("sent")
}
