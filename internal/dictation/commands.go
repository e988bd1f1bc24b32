package dictation

import (
	"errors"
	"strings"
)

// ErrUnknownCommand is returned by Insert for a name not in Commands.
var ErrUnknownCommand = errors.New("unknown helper command")

// Command maps a spoken helper name to the text it inserts.
type Command struct {
	Name  string `json:"name"`
	Token string `json:"token"`
}

var helperCommands = []Command{
	{Name: "Period", Token: "."},
	{Name: "Comma", Token: ","},
	{Name: "Question mark", Token: "?"},
	{Name: "Colon", Token: ":"},
	{Name: "Semi Colon", Token: ";"},
	{Name: "Exclamation mark", Token: "!"},
	{Name: "Dash", Token: "-"},
	{Name: "New line", Token: "\n"},
	{Name: "New paragraph", Token: "\n\n"},
	{Name: "Open parentheses", Token: "("},
	{Name: "Close parentheses", Token: ")"},
	{Name: "Smiley", Token: ":-)"},
	{Name: "Sad face", Token: ":-("},
}

// Commands lists the helper insertions in display order.
func Commands() []Command {
	return append([]Command(nil), helperCommands...)
}

// Lookup finds a helper command by name, ignoring case and surrounding space.
func Lookup(name string) (Command, bool) {
	name = strings.TrimSpace(name)
	for _, c := range helperCommands {
		if strings.EqualFold(c.Name, name) {
			return c, true
		}
	}
	return Command{}, false
}

// Insert offers the token of the named helper command.
func (s *Surface) Insert(name string) error {
	c, ok := Lookup(name)
	if !ok {
		return ErrUnknownCommand
	}
	s.Offer(c.Token)
	return nil
}
