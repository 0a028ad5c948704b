// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package prompt resolves required values from, in order, an explicit
// setting, an optional lookup, and an interactive question.
package prompt

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

var (
	// ErrEmptyValue is returned when no source produced a value.
	ErrEmptyValue = errors.New("value is required")
	// ErrPromptDisabled is returned by Disabled instead of asking.
	ErrPromptDisabled = errors.New("interactive prompt disabled")
)

// Prompter asks the user for a single value.
type Prompter interface {
	Ask(ctx context.Context, label string) (string, error)
}

// ResolveFunc looks a value up automatically. ok is false when nothing
// was found.
type ResolveFunc func(ctx context.Context) (value string, ok bool)

// ResolveOrPrompt returns value if it is non-blank, else the result of
// resolve (which may be nil), else the user's answer to label. A blank
// answer yields ErrEmptyValue.
func ResolveOrPrompt(ctx context.Context, value string, resolve ResolveFunc, p Prompter, label string) (string, error) {
	if v := strings.TrimSpace(value); v != "" {
		return v, nil
	}

	if resolve != nil {
		if v, ok := resolve(ctx); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v), nil
		}
	}

	if p == nil {
		return "", fmt.Errorf("%s: %w", label, ErrEmptyValue)
	}
	answer, err := p.Ask(ctx, label)
	if err != nil {
		return "", fmt.Errorf("prompt for %s: %w", label, err)
	}
	if v := strings.TrimSpace(answer); v != "" {
		return v, nil
	}
	return "", fmt.Errorf("%s: %w", label, ErrEmptyValue)
}

// Terminal prompts on out and reads one line per answer from in.
type Terminal struct {
	in  *bufio.Reader
	out io.Writer
}

// NewTerminal creates a line-oriented prompter.
func NewTerminal(in io.Reader, out io.Writer) *Terminal {
	return &Terminal{in: bufio.NewReader(in), out: out}
}

// Ask writes "label: " and returns the next input line without its line
// ending. End of input counts as an empty answer.
func (t *Terminal) Ask(ctx context.Context, label string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	fmt.Fprintf(t.out, "%s: ", label)

	line, err := t.in.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read answer: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// Disabled refuses to prompt. Used in non-interactive mode.
type Disabled struct{}

// Ask always fails with ErrPromptDisabled.
func (Disabled) Ask(_ context.Context, label string) (string, error) {
	return "", ErrPromptDisabled
}
