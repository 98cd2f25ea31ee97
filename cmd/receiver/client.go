package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/OperatorFoundation/nahoftu4i/capture"
	"github.com/OperatorFoundation/nahoftu4i/keys"
	"github.com/OperatorFoundation/nahoftu4i/rpc"
)

var httpClient = &http.Client{Timeout: 30 * time.Second}

func startCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "start <identity> <public-key>",
		Short: "Start receiving from a counterparty",
		Long:  "Start a receive session for identity. public-key is the counterparty's base64 public key.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := keys.Decode(args[1])
			if err != nil {
				return err
			}
			if err := opts.client().Start(cmd.Context(), args[0], key); err != nil {
				return err
			}
			fmt.Printf("Receiving from %s\n", args[0])
			return nil
		},
	}
}

func simpleCmd(opts *globalOptions, use, short string, call func(*rpc.Client, context.Context) error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return call(opts.client(), cmd.Context())
		},
	}
}

func attachCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "attach",
		Short: "Observe the engine until interrupted, suspending the countdown",
		Long: "Hold an observer lease, renewing it until interrupted, then release it. " +
			"A lease left unrenewed expires on the server.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			fmt.Println("Observing; press Ctrl-C to release")
			return opts.client().Observe(ctx)
		},
	}
}

func detachCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "detach <lease>",
		Short: "Release an observer lease",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.client().Detach(cmd.Context(), args[0])
		},
	}
}

func statusCmd(opts *globalOptions) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the engine's session state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			snap, err := opts.client().Status(cmd.Context())
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(snap)
			}

			fmt.Printf("State:     %s\n", snap.State)
			if snap.Identity != "" {
				fmt.Printf("Identity:  %s\n", snap.Identity)
				fmt.Printf("Session:   %s\n", snap.SessionID)
				fmt.Printf("Elapsed:   %s\n", snap.Elapsed.Round(time.Second))
			}
			if snap.Reason != "" {
				fmt.Printf("Reason:    %s\n", snap.Reason)
			}
			switch {
			case snap.Observed:
				fmt.Println("Countdown: suspended (observed)")
			case snap.Remaining != nil:
				warn := ""
				if snap.Warning {
					warn = " (expiring soon)"
				}
				fmt.Printf("Countdown: %s%s\n", snap.Remaining.Round(time.Second), warn)
			}
			fmt.Printf("Spots:     %d\n", snap.SpotCount)
			fmt.Printf("Fragments: %d (group %d, %d attempts)\n", snap.FragmentCount, snap.GroupID, snap.AttemptCount)
			fmt.Printf("Messages:  %d\n", snap.MessagesResolved)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the raw snapshot as JSON")
	return cmd
}

func submitCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "submit [file]",
		Short: "Submit a decode batch (JSON) from a file or stdin",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var r io.Reader = os.Stdin
			if len(args) == 1 && args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				r = f
			}

			var batch capture.Batch
			if err := json.NewDecoder(r).Decode(&batch); err != nil {
				return fmt.Errorf("failed to parse batch: %w", err)
			}
			if batch.ReceivedAt.IsZero() {
				batch.ReceivedAt = time.Now().UTC()
			}
			return opts.client().Submit(cmd.Context(), batch)
		},
	}
}
