package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/chzyer/readline"
)

// Registered here since the shell dispatches through commands itself
func init() {
	commands["shell"] = command{0, (*app).shell}
}

// Run one shell line, the bus stays open between lines
func (a *app) exec(line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	cmd, ok := commands[fields[0]]
	if !ok || fields[0] == "shell" {
		return fmt.Errorf("%w : unknown command %q (type 'help' for commands)", errUsage, fields[0])
	}
	if len(fields)-1 < cmd.args {
		return fmt.Errorf("%w : %v expects %v arguments", errUsage, fields[0], cmd.args)
	}
	return cmd.run(a, fields[1:])
}

// Interactive loop reading commands until exit or EOF
func (a *app) shell(args []string) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "candle> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		AutoComplete:    a.completer(),
	})
	if err != nil {
		return fmt.Errorf("failed to create readline: %w", err)
	}
	defer rl.Close()
	a.out = rl.Stdout()

	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			continue
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		switch strings.TrimSpace(line) {
		case "exit", "quit":
			return nil
		case "help":
			fmt.Fprint(a.out, usage)
			continue
		}
		if err := a.exec(line); err != nil {
			fmt.Fprintf(a.out, "Error: %v\n", err)
		}
	}
}

// Complete command names, then register names for read and write
func (a *app) completer() *readline.PrefixCompleter {
	names := make([]readline.PrefixCompleterInterface, 0, a.dict.Len())
	for _, name := range a.dict.Names() {
		names = append(names, readline.PcItem(name))
	}
	var items []readline.PrefixCompleterInterface
	for name := range commands {
		switch name {
		case "read", "write":
			// Device id comes first, any value is accepted
			items = append(items, readline.PcItem(name, readline.PcItemDynamic(
				func(string) []string { return []string{"0x"} }, names...)))
		case "shell":
		default:
			items = append(items, readline.PcItem(name))
		}
	}
	items = append(items, readline.PcItem("help"), readline.PcItem("exit"))
	return readline.NewPrefixCompleter(items...)
}
