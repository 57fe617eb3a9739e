package main

import (
	"bufio"
	"fmt"
	"os"

	"golang.org/x/term"
)

// arrowMenu is a single-column, arrow-key-navigable picker rendered in the
// terminal's raw mode: one line per choice, the current choice prefixed
// with "> ", redrawn in place as the cursor moves.
type arrowMenu struct {
	choices  []string
	cursor   int
	out      *bufio.Writer
	fd       int
	oldState *term.State
}

func newArrowMenu(choices []string) *arrowMenu {
	return &arrowMenu{choices: choices, fd: int(os.Stdin.Fd())}
}

// run puts the terminal in raw mode, lets the user move the cursor with
// the up/down arrows, and returns the chosen index on Enter. It returns -1
// if raw mode can't be entered or the read loop errors; Ctrl-C restores
// the terminal and exits the process with exitInterrupted.
func (m *arrowMenu) run(prompt string) int {
	if len(m.choices) == 0 {
		return -1
	}

	oldState, err := term.MakeRaw(m.fd)
	if err != nil {
		fmt.Fprintf(os.Stderr, "terminal: cannot enter raw mode: %v\r\n", err)
		return -1
	}
	m.oldState = oldState
	defer m.restore()

	m.out = bufio.NewWriter(os.Stdout)
	fmt.Fprintf(m.out, "%s\r\n", prompt)
	m.draw()
	m.out.Flush()

	keys := make([]byte, 3)
	for {
		n, err := os.Stdin.Read(keys)
		if err != nil {
			return -1
		}
		switch action := decodeKey(keys[:n]) {
		case keyEnter:
			fmt.Fprint(m.out, "\r\n")
			m.out.Flush()
			return m.cursor
		case keyInterrupt:
			m.restore()
			fmt.Fprint(os.Stdout, "\r\n")
			os.Exit(exitInterrupted)
		case keyUp:
			m.moveCursor(-1)
		case keyDown:
			m.moveCursor(1)
		}
	}
}

func (m *arrowMenu) restore() {
	if m.oldState != nil {
		term.Restore(m.fd, m.oldState)
	}
}

func (m *arrowMenu) moveCursor(delta int) {
	next := m.cursor + delta
	if next < 0 || next >= len(m.choices) {
		return
	}
	m.cursor = next
	fmt.Fprintf(m.out, "\033[%dA", len(m.choices)) // back to the first choice line
	m.draw()
	m.out.Flush()
}

func (m *arrowMenu) draw() {
	for i, choice := range m.choices {
		marker := "  "
		if i == m.cursor {
			marker = "> "
		}
		fmt.Fprintf(m.out, "\033[2K\r%s%s\r\n", marker, choice)
	}
}

type keyAction int

const (
	keyNone keyAction = iota
	keyEnter
	keyInterrupt
	keyUp
	keyDown
)

// decodeKey classifies one raw read from the terminal: a bare control byte
// or a three-byte ANSI cursor escape sequence (ESC '[' 'A'/'B').
func decodeKey(b []byte) keyAction {
	if len(b) == 1 {
		switch b[0] {
		case 0x0D, 0x0A:
			return keyEnter
		case 0x03:
			return keyInterrupt
		}
		return keyNone
	}
	if len(b) == 3 && b[0] == 0x1B && b[1] == '[' {
		switch b[2] {
		case 'A':
			return keyUp
		case 'B':
			return keyDown
		}
	}
	return keyNone
}

// chooseRole prompts interactively for a role when none was given on the
// command line and stdin is a terminal.
func chooseRole() (string, bool) {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return "", false
	}
	roles := []string{"alice", "bob", "eve"}
	idx := newArrowMenu(roles).run("Select endpoint role:")
	if idx < 0 {
		return "", false
	}
	return roles[idx], true
}
