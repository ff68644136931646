package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/wolfman30/whatsapp-ai-relay/internal/adminclient"
	"github.com/wolfman30/whatsapp-ai-relay/internal/http/handlers"
)

const defaultServer = "http://localhost:3000"

type rootOptions struct {
	server  string
	timeout time.Duration
}

func (o *rootOptions) client() *adminclient.Client {
	return adminclient.New(o.server)
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "relayctl",
		Short: "Operate a running WhatsApp AI relay",
		Long: `relayctl talks to the relay's operator endpoints.

Quick Start:
  relayctl assign --gemini-key KEY --wa-token TOKEN --prompt "Be brief"
  relayctl status
  relayctl send --token TOKEN --to 911234 --message "hello"
  relayctl history 911234`,
		SilenceUsage: true,
	}

	server := os.Getenv("RELAY_SERVER")
	if server == "" {
		server = defaultServer
	}
	root.PersistentFlags().StringVar(&opts.server, "server", server, "Relay base URL (env RELAY_SERVER)")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", 30*time.Second, "Request timeout")

	root.AddCommand(
		newAssignCmd(opts),
		newStatusCmd(opts),
		newSendCmd(opts),
		newHistoryCmd(opts),
	)
	return root
}

func newAssignCmd(opts *rootOptions) *cobra.Command {
	var req handlers.AssignAIRequest
	cmd := &cobra.Command{
		Use:   "assign",
		Short: "Assign the Gemini key, system prompt and WhatsApp token",
		Long: `Replace the relay's AI configuration. Every field is overwritten:
omitting --prompt or --wa-token clears the previous value.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := withTimeout(cmd, opts.timeout)
			defer cancel()

			resp, err := opts.client().AssignAI(ctx, req)
			if err != nil {
				return fmt.Errorf("failed to assign ai: %w", err)
			}
			return printJSON(cmd.OutOrStdout(), resp.Status)
		},
	}
	cmd.Flags().StringVar(&req.GeminiKey, "gemini-key", "", "Gemini API key")
	cmd.Flags().StringVar(&req.SystemPrompt, "prompt", "", "Custom system prompt")
	cmd.Flags().StringVar(&req.WAToken, "wa-token", "", "WhatsApp Cloud API access token")
	_ = cmd.MarkFlagRequired("gemini-key")
	return cmd
}

func newStatusCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show which credentials the relay holds",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := withTimeout(cmd, opts.timeout)
			defer cancel()

			status, err := opts.client().AIStatus(ctx)
			if err != nil {
				return fmt.Errorf("failed to fetch status: %w", err)
			}
			return printJSON(cmd.OutOrStdout(), status)
		},
	}
}

func newSendCmd(opts *rootOptions) *cobra.Command {
	var req handlers.SendMessageRequest
	cmd := &cobra.Command{
		Use:   "send",
		Short: "Send a WhatsApp message directly, bypassing the AI",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := withTimeout(cmd, opts.timeout)
			defer cancel()

			resp, err := opts.client().SendMessage(ctx, req)
			if err != nil {
				return fmt.Errorf("failed to send message: %w", err)
			}
			if err := printJSON(cmd.OutOrStdout(), resp); err != nil {
				return err
			}
			if !resp.Success {
				return fmt.Errorf("provider rejected the message")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&req.Token, "token", "", "WhatsApp Cloud API access token")
	cmd.Flags().StringVar(&req.To, "to", "", "Recipient WhatsApp id")
	cmd.Flags().StringVarP(&req.Message, "message", "m", "", "Message text")
	_ = cmd.MarkFlagRequired("token")
	_ = cmd.MarkFlagRequired("to")
	_ = cmd.MarkFlagRequired("message")
	return cmd
}

func newHistoryCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "history <user-id>",
		Short: "Print the recorded conversation for a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := withTimeout(cmd, opts.timeout)
			defer cancel()

			hist, err := opts.client().History(ctx, args[0])
			if err != nil {
				return fmt.Errorf("failed to fetch history: %w", err)
			}

			out := cmd.OutOrStdout()
			if len(hist.Turns) == 0 {
				fmt.Fprintf(out, "No turns recorded for %s\n", hist.UserID)
				return nil
			}
			for _, turn := range hist.Turns {
				fmt.Fprintf(out, "[%s] %-9s %s\n", turn.At.Format(time.RFC3339), turn.Speaker, turn.Text)
			}
			return nil
		},
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
