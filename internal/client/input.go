// Package client implements the interactive collaborator: it keeps a local
// replica of the shared document, turns typed lines into edits and follows
// the server's broadcasts.
package client

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidInput is returned for lines that cannot be parsed.
var ErrInvalidInput = errors.New("invalid input")

// CommandKind identifies what a parsed line asks for.
type CommandKind int

const (
	CommandInsert CommandKind = iota
	CommandDelete
	CommandShow
	CommandQuit
)

// Command is a parsed input line.
type Command struct {
	Kind     CommandKind
	Position int
	Text     string
	Count    int
}

const usage = "use '<position>,<text>' to insert or '<position>,delete<count>' to delete"

// ParseInput parses one line. "<position>,<text>" inserts text (which may
// itself contain commas), "<position>,delete<count>" deletes count bytes, and
// ":show" / ":quit" are local commands.
func ParseInput(line string) (Command, error) {
	line = strings.TrimRight(line, "\r\n")
	switch strings.TrimSpace(line) {
	case ":show":
		return Command{Kind: CommandShow}, nil
	case ":quit", ":q":
		return Command{Kind: CommandQuit}, nil
	case "":
		return Command{}, fmt.Errorf("%w: empty line, %s", ErrInvalidInput, usage)
	}

	posStr, rest, ok := strings.Cut(line, ",")
	if !ok {
		return Command{}, fmt.Errorf("%w: missing ',', %s", ErrInvalidInput, usage)
	}

	pos, err := strconv.Atoi(strings.TrimSpace(posStr))
	if err != nil || pos < 0 {
		return Command{}, fmt.Errorf("%w: position %q is not a non-negative number", ErrInvalidInput, posStr)
	}

	if countStr, isDelete := strings.CutPrefix(rest, "delete"); isDelete {
		count, err := strconv.Atoi(strings.TrimSpace(countStr))
		if err != nil || count < 0 {
			return Command{}, fmt.Errorf("%w: delete count %q is not a non-negative number", ErrInvalidInput, countStr)
		}
		return Command{Kind: CommandDelete, Position: pos, Count: count}, nil
	}

	if rest == "" {
		return Command{}, fmt.Errorf("%w: nothing to insert, %s", ErrInvalidInput, usage)
	}
	return Command{Kind: CommandInsert, Position: pos, Text: rest}, nil
}
