package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/matheus3301/mixdesk/internal/backend"
	"github.com/matheus3301/mixdesk/internal/chat"
	"github.com/matheus3301/mixdesk/internal/rpc"
	"github.com/spf13/cobra"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Work with the selected conversation",
}

var chatOpenCmd = &cobra.Command{
	Use:   "open <peer-id>",
	Short: "Select a peer and load the conversation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(cmd, func(ctx context.Context, c *rpc.Client) error {
			resp, err := c.OpenChat(ctx, args[0])
			if err != nil {
				return err
			}
			printChat(resp.Chat)
			return nil
		})
	},
}

var chatCloseCmd = &cobra.Command{
	Use:   "close",
	Short: "Clear the selection and stop live updates",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withClient(cmd, func(ctx context.Context, c *rpc.Client) error {
			resp, err := c.CloseChat(ctx)
			if err != nil {
				return err
			}
			if jsonFlag {
				outputJSON(resp)
				return nil
			}
			fmt.Println("Chat closed.")
			return nil
		})
	},
}

var chatShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the selected conversation",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withClient(cmd, func(ctx context.Context, c *rpc.Client) error {
			resp, err := c.GetChat(ctx)
			if err != nil {
				return err
			}
			printChat(resp.Chat)
			return nil
		})
	},
}

var sendPeer string

var chatSendCmd = &cobra.Command{
	Use:   "send <text>...",
	Short: "Send a message to the selected peer (or --to)",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(cmd, func(ctx context.Context, c *rpc.Client) error {
			resp, err := c.SendMessage(ctx, sendPeer, strings.Join(args, " "))
			if err != nil {
				return err
			}
			if jsonFlag {
				outputJSON(resp)
				return nil
			}
			fmt.Printf("Sent %s at %s\n", resp.Message.ID, resp.Message.SentAt.Local().Format("15:04:05"))
			return nil
		})
	},
}

var contactsRefresh bool

var contactsCmd = &cobra.Command{
	Use:   "contacts",
	Short: "List the peers the user has conversations with",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withClient(cmd, func(ctx context.Context, c *rpc.Client) error {
			resp, err := c.ListContacts(ctx, contactsRefresh)
			if err != nil {
				return err
			}
			if jsonFlag {
				outputJSON(resp)
				return nil
			}
			if len(resp.Contacts) == 0 {
				fmt.Println("No contacts found.")
				return nil
			}
			for _, p := range resp.Contacts {
				fmt.Printf("%-36s %s\n", p.ID, p.DisplayName())
			}
			return nil
		})
	},
}

func init() {
	chatSendCmd.Flags().StringVar(&sendPeer, "to", "", "peer id (defaults to the selected peer)")
	contactsCmd.Flags().BoolVar(&contactsRefresh, "refresh", false, "bypass the cached list")
	chatCmd.AddCommand(chatOpenCmd, chatCloseCmd, chatShowCmd, chatSendCmd)
	rootCmd.AddCommand(chatCmd, contactsCmd)
}

func printChat(s chat.Snapshot) {
	if jsonFlag {
		outputJSON(rpc.ChatResponse{Chat: s})
		return
	}
	if s.SelectedID == "" {
		fmt.Println("No chat selected.")
		return
	}
	fmt.Printf("%s (%s)\n", peerName(s.SelectedPeer, s.SelectedID), strings.ToLower(string(s.Presence)))
	for _, m := range s.Messages {
		who := "them"
		if m.SenderID != s.SelectedID {
			who = "me"
		}
		mark := ""
		if m.Delivery == chat.Pending {
			mark = " (sending)"
		}
		fmt.Printf("  [%s] %-4s %s%s\n", m.SentAt.Local().Format("15:04"), who, m.TextContent, mark)
	}
}

func peerName(p backend.Peer, fallback string) string {
	if p.ID == "" {
		return fallback
	}
	return p.DisplayName()
}
