// Package codec serializes commands for the DSP engine and parses its responses.
//
// The wire format carries no envelope and no request id: a command is either a bare
// JSON string ("GetVersion") or a single-key JSON object ({"SetVolume": -10.5}), and a
// response is a single-key object named after the command it answers.
package codec

import (
	"encoding/json"
	"fmt"
	"reflect"
)

// UnknownCommand is the name given to commands that have neither shape.
const UnknownCommand = "Unknown"

// Command is either a bare command name (string) or a map with a single string key
// holding the command argument. Any other value is accepted but formats as UnknownCommand.
type Command = any

// Bare returns a command without argument.
func Bare(name string) Command {
	return name
}

// WithArg returns a command carrying a single argument.
func WithArg(name string, arg any) Command {
	return map[string]any{name: arg}
}

// FormatCommand returns the command name used to correlate responses. It never fails.
func FormatCommand(cmd Command) string {
	switch c := cmd.(type) {
	case string:
		return c
	case map[string]any:
		if len(c) != 1 {
			return UnknownCommand
		}
		for k := range c {
			return k
		}
	case map[string]json.RawMessage:
		if len(c) != 1 {
			return UnknownCommand
		}
		for k := range c {
			return k
		}
	}

	v := reflect.ValueOf(cmd)
	if v.Kind() == reflect.Map && v.Type().Key().Kind() == reflect.String && v.Len() == 1 {
		return v.MapKeys()[0].String()
	}

	return UnknownCommand
}

// FormatMessage encodes the command exactly as given.
func FormatMessage(cmd Command) ([]byte, error) {
	b, err := json.Marshal(cmd)
	if err != nil {
		return nil, fmt.Errorf("encode command %s: %w", FormatCommand(cmd), err)
	}

	return b, nil
}
