// Copyright 2026 The PolicySync Authors
// SPDX-License-Identifier: Apache-2.0

package secret

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/term"
)

// ErrNotTerminal is returned by Prompt when the input is not a
// terminal.
var ErrNotTerminal = errors.New("secret: input is not a terminal")

// FromEnv moves the secret in the environment variable name into a
// Buffer and unsets the variable so child processes do not inherit
// it.
func FromEnv(name string) (*Buffer, error) {
	value, ok := os.LookupEnv(name)
	if !ok {
		return nil, fmt.Errorf("secret: environment variable %s is not set", name)
	}
	if err := os.Unsetenv(name); err != nil {
		return nil, fmt.Errorf("secret: unsetting %s: %w", name, err)
	}
	buffer, err := fromTrimmed([]byte(value))
	if err != nil {
		return nil, fmt.Errorf("%w in %s", err, name)
	}
	return buffer, nil
}

// ReadFromPath reads a secret from path, or the first line of stdin
// if path is "-".
func ReadFromPath(path string) (*Buffer, error) {
	if path == "-" {
		return readLine(os.Stdin)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("secret: %w", err)
	}
	return fromTrimmed(data)
}

func readLine(reader io.Reader) (*Buffer, error) {
	scanner := bufio.NewScanner(reader)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("secret: reading stdin: %w", err)
		}
		return nil, ErrEmpty
	}
	return fromTrimmed(scanner.Bytes())
}

// Prompt writes prompt to output and reads one line from the terminal
// file descriptor fd without echo.
func Prompt(fd int, output io.Writer, prompt string) (*Buffer, error) {
	if !term.IsTerminal(fd) {
		return nil, ErrNotTerminal
	}
	fmt.Fprint(output, prompt)
	line, err := term.ReadPassword(fd)
	fmt.Fprintln(output)
	if err != nil {
		return nil, fmt.Errorf("secret: reading terminal: %w", err)
	}
	return fromTrimmed(line)
}

// fromTrimmed moves the trimmed content of data into a Buffer and
// zeroes data.
func fromTrimmed(data []byte) (*Buffer, error) {
	defer Zero(data)
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, ErrEmpty
	}
	return NewFromBytes(trimmed)
}
