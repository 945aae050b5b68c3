package feedback

// Command is a single keypress from the operator.
type Command byte

const (
	CommandNone Command = 0
	CommandUp   Command = 'u'
	CommandDown Command = 'd'
	CommandQuit Command = 'q'
)

func (c Command) String() string {
	switch c {
	case CommandNone:
		return "none"
	case CommandUp:
		return "up"
	case CommandDown:
		return "down"
	case CommandQuit:
		return "quit"
	}
	return "unknown(" + string(rune(c)) + ")"
}

func (c Command) MarshalText() ([]byte, error) { return []byte(c.String()), nil }

// ParseCommand maps a key to a known command.
func ParseCommand(b byte) (Command, bool) {
	switch Command(b) {
	case CommandUp, CommandDown, CommandQuit:
		return Command(b), true
	case 'U', 'D', 'Q':
		return Command(b + ('a' - 'A')), true
	}
	return CommandNone, false
}
