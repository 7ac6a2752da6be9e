package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var watchCmd = &cobra.Command{
	Use:   "watch [namespace...]",
	Short: "Stream daemon events (namespaces: session. chat. hub. contacts.)",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, _, err := connect()
		if err != nil {
			return err
		}
		defer func() { _ = c.Close() }()

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		stream, err := c.WatchEvents(ctx, args...)
		if err != nil {
			return err
		}
		for {
			evt, err := stream.Recv()
			if err != nil {
				if errors.Is(err, io.EOF) || errors.Is(ctx.Err(), context.Canceled) || status.Code(err) == codes.Canceled {
					return nil
				}
				return err
			}
			if jsonFlag {
				outputJSON(evt)
				continue
			}
			at := time.UnixMilli(evt.OccurredAtUnixMs).Format("15:04:05.000")
			fmt.Printf("%s %-28s %s\n", at, evt.Kind, string(evt.Payload))
		}
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)
}
