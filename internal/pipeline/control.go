package pipeline

import (
	"os"
	"strings"
)

// ControlCommand is one of the recognized CONTROL.md directives.
type ControlCommand string

const (
	ControlNone     ControlCommand = ""
	ControlPause    ControlCommand = "PAUSE"
	ControlSkip     ControlCommand = "SKIP"
	ControlAbort    ControlCommand = "ABORT"
	ControlStatus   ControlCommand = "STATUS"
	ControlEscalate ControlCommand = "ESCALATE"
)

var recognizedControlCommands = map[string]ControlCommand{
	"PAUSE":    ControlPause,
	"SKIP":     ControlSkip,
	"ABORT":    ControlAbort,
	"STATUS":   ControlStatus,
	"ESCALATE": ControlEscalate,
}

// ReadControl parses CONTROL.md per SPEC_FULL.md §6.2: a line containing
// exactly one of the recognized commands (case-insensitive, trimmed) is that
// command; any other line is ignored. The last recognized line wins when
// more than one is present, since CONTROL.md is user-editable and a later
// line reflects the user's most recent instruction. A missing file yields
// ControlNone.
func ReadControl(path string) ControlCommand {
	data, err := os.ReadFile(path)
	if err != nil {
		return ControlNone
	}

	found := ControlNone
	for _, line := range strings.Split(string(data), "\n") {
		key := strings.ToUpper(strings.TrimSpace(line))
		if cmd, ok := recognizedControlCommands[key]; ok {
			found = cmd
		}
	}
	return found
}
