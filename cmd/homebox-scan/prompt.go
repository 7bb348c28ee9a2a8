package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// errQuit ends the wizard and leaves the session saved for later.
var errQuit = errors.New("quit")

type prompter struct {
	in  *bufio.Reader
	out io.Writer
}

func newPrompter(in io.Reader, out io.Writer) *prompter {
	return &prompter{in: bufio.NewReader(in), out: out}
}

// ask prints question and returns the trimmed answer. End of input counts
// as quitting.
func (p *prompter) ask(question string) (string, error) {
	fmt.Fprintf(p.out, "%s ", question)
	line, err := p.in.ReadString('\n')
	line = strings.TrimSpace(line)
	if err != nil {
		if errors.Is(err, io.EOF) && line != "" {
			return line, nil
		}
		if errors.Is(err, io.EOF) {
			fmt.Fprintln(p.out)
			return "", errQuit
		}
		return "", err
	}
	return line, nil
}

// choice asks for a single-letter option and returns it lower-cased.
func (p *prompter) choice(question string) (string, error) {
	answer, err := p.ask(question)
	if err != nil {
		return "", err
	}
	answer = strings.ToLower(answer)
	if answer == "q" || answer == "quit" {
		return "", errQuit
	}
	if len(answer) > 1 {
		answer = answer[:1]
	}
	return answer, nil
}

func (p *prompter) confirm(question string, def bool) (bool, error) {
	hint := "[y/N]"
	if def {
		hint = "[Y/n]"
	}
	answer, err := p.ask(question + " " + hint)
	if err != nil {
		return false, err
	}
	switch strings.ToLower(answer) {
	case "":
		return def, nil
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}

// number asks for a 1-based index no larger than limit.
func (p *prompter) number(question string, limit int) (int, error) {
	for {
		answer, err := p.ask(question)
		if err != nil {
			return 0, err
		}
		if strings.EqualFold(answer, "q") {
			return 0, errQuit
		}
		n, err := strconv.Atoi(answer)
		if err == nil && n >= 1 && n <= limit {
			return n, nil
		}
		fmt.Fprintf(p.out, "Enter a number between 1 and %d.\n", limit)
	}
}

// edit asks for a replacement value; a blank answer keeps current.
func (p *prompter) edit(label, current string) (string, error) {
	answer, err := p.ask(fmt.Sprintf("%s [%s]:", label, current))
	if err != nil {
		return "", err
	}
	if answer == "" {
		return current, nil
	}
	return answer, nil
}
