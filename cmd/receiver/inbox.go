package main

import (
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/OperatorFoundation/nahoftu4i/inbox"
)

func inboxCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inbox",
		Short: "Read recovered messages",
	}
	cmd.AddCommand(inboxListCmd(opts))
	cmd.AddCommand(inboxShowCmd(opts))
	cmd.AddCommand(inboxDeleteCmd(opts))
	return cmd
}

func openInbox(opts *globalOptions) (inbox.Store, error) {
	cfg, err := opts.loadConfig()
	if err != nil {
		return nil, err
	}
	store, err := inbox.NewStore(&cfg.Inbox)
	if err != nil {
		return nil, err
	}
	if store == nil {
		return nil, errors.New("inbox disabled: no inbox path configured")
	}
	return store, nil
}

func inboxListCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list [identity]",
		Short: "List messages, optionally only those from identity",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openInbox(opts)
			if err != nil {
				return err
			}
			defer store.Close()

			var identity string
			if len(args) == 1 {
				identity = args[0]
			}
			msgs, err := store.List(cmd.Context(), identity)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tFROM\tRECEIVED\tPARTS\tBYTES")
			for _, m := range msgs {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\n", m.ID, m.Identity, m.ReceivedAt.Local().Format(time.DateTime), m.TotalParts, len(m.Plaintext))
			}
			return w.Flush()
		},
	}
}

func inboxShowCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Print a message's plaintext",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openInbox(opts)
			if err != nil {
				return err
			}
			defer store.Close()

			msg, err := store.Load(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Printf("From:     %s\n", msg.Identity)
			fmt.Printf("Received: %s\n\n", msg.ReceivedAt.Local().Format(time.DateTime))
			fmt.Println(string(msg.Plaintext))
			return nil
		},
	}
}

func inboxDeleteCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>...",
		Short: "Delete messages",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openInbox(opts)
			if err != nil {
				return err
			}
			defer store.Close()
			return store.Delete(cmd.Context(), args...)
		},
	}
}
