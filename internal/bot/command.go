package bot

import (
	"regexp"
	"strings"
)

var commandPattern = regexp.MustCompile(`^/([A-Za-z0-9_]+)(?:@([A-Za-z0-9_]+))?(?:\s+([\s\S]*))?$`)

type command struct {
	name string
	// mention is the @botname suffix, if any.
	mention string
	args    string
}

// parseCommand splits "/name@bot args". Text that is not a command returns
// false.
func parseCommand(text string) (command, bool) {
	m := commandPattern.FindStringSubmatch(strings.TrimSpace(text))
	if m == nil {
		return command{}, false
	}
	return command{
		name:    strings.ToLower(m[1]),
		mention: m[2],
		args:    strings.TrimSpace(m[3]),
	}, true
}

// addressedTo reports whether the command is meant for the bot called
// username. Unaddressed commands are for everyone.
func (c command) addressedTo(username string) bool {
	return c.mention == "" || strings.EqualFold(c.mention, username)
}
