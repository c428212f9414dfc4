package dialog

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Presenter shows the dialog and blocks until the user answers or ctx ends.
type Presenter interface {
	Present(ctx context.Context, inputs Inputs) (Result, error)
}

// PresenterFunc adapts a function into a Presenter.
type PresenterFunc func(context.Context, Inputs) (Result, error)

// Present calls f.
func (f PresenterFunc) Present(ctx context.Context, inputs Inputs) (Result, error) {
	return f(ctx, inputs)
}

// Terminal renders the dialog as text and reads the answer line by line.
type Terminal struct {
	In  io.Reader
	Out io.Writer
}

type answer struct {
	line string
	eof  bool
	err  error
}

// Present renders inputs to Out and waits for a pass or fail answer on In.
// Closing In fails the dialog.
func (t Terminal) Present(ctx context.Context, inputs Inputs) (Result, error) {
	if t.In == nil {
		return Result{}, errors.New("terminal presenter has no input")
	}
	out := t.Out
	if out == nil {
		out = io.Discard
	}

	render(out, inputs)

	lines := make(chan answer)
	go scanAnswers(ctx, t.In, lines)

	for {
		fmt.Fprint(out, "> ")
		select {
		case <-ctx.Done():
			return Result{}, ctx.Err()
		case a := <-lines:
			if a.err != nil {
				return Result{}, fmt.Errorf("read answer: %w", a.err)
			}
			if a.eof {
				fmt.Fprintln(out)
				return Result{Outcome: OutcomeFail, Source: SourcePresenter, Message: "input closed"}, nil
			}
			if outcome, ok := parseAnswer(a.line, inputs); ok {
				return Result{Outcome: outcome, Source: SourcePresenter, Message: strings.TrimSpace(a.line)}, nil
			}
			fmt.Fprintf(out, "unrecognized answer %q\n", strings.TrimSpace(a.line))
		}
	}
}

func scanAnswers(ctx context.Context, in io.Reader, lines chan<- answer) {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		select {
		case lines <- answer{line: scanner.Text()}:
		case <-ctx.Done():
			return
		}
	}
	last := answer{eof: true, err: scanner.Err()}
	select {
	case lines <- last:
	case <-ctx.Done():
	}
}

func render(out io.Writer, inputs Inputs) {
	if inputs.DialogTitle != "" {
		fmt.Fprintf(out, "== %s ==\n", inputs.DialogTitle)
	}
	if inputs.Title != "" {
		fmt.Fprintln(out, inputs.Title)
		fmt.Fprintln(out, strings.Repeat("-", len(inputs.Title)))
	}
	if inputs.Description != "" {
		fmt.Fprintln(out, inputs.Description)
	}
	fmt.Fprintf(out, "\n[p] %s    [f] %s\n", inputs.passText(), inputs.failText())
}

// parseAnswer accepts p/pass or the pass button text, and f/fail/q or the
// fail button text, ignoring case.
func parseAnswer(line string, inputs Inputs) (Outcome, bool) {
	text := strings.ToLower(strings.TrimSpace(line))
	switch text {
	case "p", "pass", strings.ToLower(inputs.passText()):
		return OutcomePass, true
	case "f", "fail", "q", strings.ToLower(inputs.failText()):
		return OutcomeFail, true
	default:
		return "", false
	}
}
