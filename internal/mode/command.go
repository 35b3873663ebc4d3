package mode

import (
	"strings"
)

// CommandKind enumerates operator commands
type CommandKind string

const (
	CommandQuit            CommandKind = "quit"
	CommandSwitchMode      CommandKind = "switch_mode"
	CommandSaveFrame       CommandKind = "save_frame"
	CommandResetBackground CommandKind = "reset_background"
	CommandShowSummary     CommandKind = "show_summary"
	CommandRegisterFace    CommandKind = "register_face"
)

// Command is one decoded operator input
type Command struct {
	Kind CommandKind `json:"kind"`
	// Mode is set for CommandSwitchMode
	Mode Mode `json:"mode,omitempty"`
	// Name is set for CommandRegisterFace
	Name string `json:"name,omitempty"`
}

var keyCommands = map[string]Command{
	"q": {Kind: CommandQuit},
	"1": {Kind: CommandSwitchMode, Mode: Face},
	"2": {Kind: CommandSwitchMode, Mode: Recognition},
	"3": {Kind: CommandSwitchMode, Mode: Motion},
	"4": {Kind: CommandSwitchMode, Mode: People},
	"5": {Kind: CommandSwitchMode, Mode: Color},
	"a": {Kind: CommandSwitchMode, Mode: All},
	"s": {Kind: CommandSaveFrame},
	"r": {Kind: CommandResetBackground},
	"l": {Kind: CommandShowSummary},
}

// ParseCommand decodes a key or text command. Accepted forms are the single
// keys q 1-5 a s r l, the words quit/save/reset/summary, "mode <name>" and
// "register <name>". Anything else returns ok=false and is meant to be
// ignored.
func ParseCommand(input string) (Command, bool) {
	fields := strings.Fields(input)
	if len(fields) == 0 {
		return Command{}, false
	}
	head := strings.ToLower(fields[0])

	if len(fields) == 1 {
		if cmd, ok := keyCommands[head]; ok {
			return cmd, true
		}
		switch head {
		case "quit", "exit":
			return Command{Kind: CommandQuit}, true
		case "save":
			return Command{Kind: CommandSaveFrame}, true
		case "reset":
			return Command{Kind: CommandResetBackground}, true
		case "summary":
			return Command{Kind: CommandShowSummary}, true
		}
		return Command{}, false
	}

	if len(fields) != 2 {
		return Command{}, false
	}
	switch head {
	case "mode":
		m, err := ParseMode(fields[1])
		if err != nil {
			return Command{}, false
		}
		return Command{Kind: CommandSwitchMode, Mode: m}, true
	case "register":
		return Command{Kind: CommandRegisterFace, Name: fields[1]}, true
	}
	return Command{}, false
}
