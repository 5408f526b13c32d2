package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mickaelvieira/dspclient"
	"github.com/mickaelvieira/dspclient/codec"
	"github.com/mickaelvieira/dspclient/queue"
)

func newSendCommand(ctx *commandContext) *cobra.Command {
	var unitID string
	var priority string
	var timeout time.Duration
	var connectTimeout time.Duration

	cmd := &cobra.Command{
		Use:   "send <command> [json-argument]",
		Short: "Send one command and print its result",
		Example: `  dspctl send GetVersion
  dspctl send SetVolume -- -12.5
  dspctl send SetConfigFilePath '"/etc/dsp/room.yml"'`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, ok := queue.ParsePriority(strings.ToLower(strings.TrimSpace(priority)))
			if !ok {
				return fmt.Errorf("unknown priority %q (expected high, normal or low)", priority)
			}

			command, err := buildCommand(args)
			if err != nil {
				return err
			}

			u, err := ctx.unit(unitID)
			if err != nil {
				return err
			}

			signalCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			client, err := ctx.newClient(u, nil)
			if err != nil {
				return err
			}
			defer client.Close()

			connectCtx, cancelConnect := context.WithTimeout(signalCtx, connectTimeout)
			defer cancelConnect()
			if err := client.Connect(connectCtx); err != nil {
				return fmt.Errorf("connect to %s: %w", u.URL, err)
			}

			var opts []dspclient.SendOption
			if timeout > 0 {
				opts = append(opts, dspclient.WithTimeout(timeout))
			}

			result, err := client.Send(signalCtx, command, p, opts...)
			if err != nil {
				return err
			}

			return printResult(cmd, result)
		},
	}

	cmd.Flags().StringVarP(&unitID, "unit", "u", "", "Configured unit to address (defaults to the first one)")
	cmd.Flags().StringVarP(&priority, "priority", "p", "normal", "Command priority (high, normal, low)")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "Response timeout (defaults to client.request_timeout_ms)")
	cmd.Flags().DurationVar(&connectTimeout, "connect-timeout", 10*time.Second, "Time allowed to open the socket")
	return cmd
}

// buildCommand turns the positional arguments into a bare command or a command with
// one JSON argument.
func buildCommand(args []string) (codec.Command, error) {
	if len(args) == 1 {
		return codec.Bare(args[0]), nil
	}

	var arg any
	if err := json.Unmarshal([]byte(args[1]), &arg); err != nil {
		return nil, fmt.Errorf("argument of %s is not valid JSON: %w", args[0], err)
	}
	return codec.WithArg(args[0], arg), nil
}

func printResult(cmd *cobra.Command, result json.RawMessage) error {
	out := cmd.OutOrStdout()
	if result == nil {
		fmt.Fprintln(out, "null")
		return nil
	}

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, result, "", "  "); err != nil {
		return fmt.Errorf("format result: %w", err)
	}
	fmt.Fprintln(out, pretty.String())
	return nil
}
