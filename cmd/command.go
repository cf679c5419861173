package main

import (
	"path/filepath"
	"strings"
)

type commandKind int

const (
	cmdNone commandKind = iota
	cmdText
	cmdFile
	cmdTyping
	cmdQuit
)

type command struct {
	kind commandKind
	path string
	text string
}

func (c command) fileName() string { return filepath.Base(c.path) }

// parseCommand understands "/quit", "/typing", "/file <path> [caption]" and
// plain text.
func parseCommand(line string) command {
	trimmed := strings.TrimSpace(line)
	switch {
	case trimmed == "":
		return command{kind: cmdNone}
	case trimmed == "/quit":
		return command{kind: cmdQuit}
	case trimmed == "/typing":
		return command{kind: cmdTyping}
	case trimmed == "/file" || strings.HasPrefix(trimmed, "/file "):
		rest := strings.TrimSpace(strings.TrimPrefix(trimmed, "/file"))
		path, caption, _ := strings.Cut(rest, " ")
		if path == "" {
			return command{kind: cmdNone}
		}
		return command{kind: cmdFile, path: path, text: strings.TrimSpace(caption)}
	default:
		return command{kind: cmdText, text: line}
	}
}
