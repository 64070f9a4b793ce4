package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/dvloznov/pocketsync/internal/engine"
)

// terminal asks questions on a line-oriented reader and writer.
type terminal struct {
	in  *bufio.Reader
	out io.Writer
}

var _ engine.Prompter = (*terminal)(nil)

func newTerminal(in io.Reader, out io.Writer) *terminal {
	return &terminal{in: bufio.NewReader(in), out: out}
}

// readLine returns the next trimmed line. io.EOF is returned only when the
// input ended with nothing left to read.
func (t *terminal) readLine(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	line, err := t.in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// Confirm implements the engine.Prompter interface.
func (t *terminal) Confirm(ctx context.Context, question string, def bool) (bool, error) {
	hint := "y/N"
	if def {
		hint = "Y/n"
	}
	for {
		fmt.Fprintf(t.out, "? %s (%s) ", question, hint)
		answer, err := t.readLine(ctx)
		if errors.Is(err, io.EOF) {
			fmt.Fprintln(t.out)
			return def, nil
		}
		if err != nil {
			return false, err
		}
		switch strings.ToLower(answer) {
		case "":
			return def, nil
		case "y", "yes":
			return true, nil
		case "n", "no":
			return false, nil
		}
		fmt.Fprintln(t.out, "Please answer yes or no.")
	}
}

// Select implements the engine.Prompter interface.
func (t *terminal) Select(ctx context.Context, question string, options []string) (int, error) {
	if len(options) == 0 {
		return -1, errors.New("Select: no options")
	}
	fmt.Fprintf(t.out, "? %s\n", question)
	for i, o := range options {
		fmt.Fprintf(t.out, "  %d) %s\n", i+1, o)
	}
	for {
		fmt.Fprintf(t.out, "Enter a number [1-%d]: ", len(options))
		answer, err := t.readLine(ctx)
		if err != nil {
			return -1, err
		}
		n, err := strconv.Atoi(answer)
		if err == nil && n >= 1 && n <= len(options) {
			return n - 1, nil
		}
		fmt.Fprintf(t.out, "%q is not a valid choice.\n", answer)
	}
}

// Input implements the engine.Prompter interface.
func (t *terminal) Input(ctx context.Context, question, def string) (string, error) {
	if def != "" {
		fmt.Fprintf(t.out, "? %s (%s) ", question, def)
	} else {
		fmt.Fprintf(t.out, "? %s ", question)
	}
	answer, err := t.readLine(ctx)
	if errors.Is(err, io.EOF) {
		fmt.Fprintln(t.out)
		return def, nil
	}
	if err != nil {
		return "", err
	}
	if answer == "" {
		return def, nil
	}
	return answer, nil
}
