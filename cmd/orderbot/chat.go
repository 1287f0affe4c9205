package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"parts-order-bot/internal/domain"
	"parts-order-bot/internal/usecase"
)

var chatOrderID string

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat with the bot in the terminal",
	Long: `Start an interactive conversation. Every line is one customer message.

Commands inside the chat:
  /new     start a new order
  /order   print the current order as JSON
  /quit    leave`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()
		return runChat(cmd.Context(), a.service, cmd.InOrStdin(), cmd.OutOrStdout(), chatOrderID)
	},
}

func init() {
	chatCmd.Flags().StringVar(&chatOrderID, "order", "", "Continue an existing order")
}

type chatService interface {
	HandleMessage(ctx context.Context, in usecase.MessageInput) (usecase.TurnOutput, error)
	GetOrder(ctx context.Context, orderID string) (domain.Order, error)
}

func runChat(ctx context.Context, svc chatService, in io.Reader, out io.Writer, orderID string) error {
	fmt.Fprintln(out, "orderbot chat, /quit to leave")
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "/quit", "/exit":
			return nil
		case "/new":
			orderID = ""
			fmt.Fprintln(out, "started a new order")
			continue
		case "/order":
			if err := printOrder(ctx, svc, out, orderID); err != nil {
				fmt.Fprintf(out, "error: %v\n", err)
			}
			continue
		}

		res, err := svc.HandleMessage(ctx, usecase.MessageInput{
			OrderID:   orderID,
			ChatID:    "terminal",
			MessageID: uuid.NewString(),
			Text:      line,
		})
		if err != nil {
			fmt.Fprintf(out, "error: %v\n", err)
			continue
		}
		orderID = res.OrderID
		fmt.Fprintf(out, "bot: %s\n", res.Reply)
		fmt.Fprintf(out, "     [%s]", res.Status)
		if len(res.SlotsToAsk) > 0 {
			fmt.Fprintf(out, " asking: %s", res.SlotsToAsk[0])
		}
		if res.ShouldApologize {
			fmt.Fprint(out, " apologized")
		}
		fmt.Fprintln(out)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read input: %w", err)
	}
	return nil
}

func printOrder(ctx context.Context, svc chatService, out io.Writer, orderID string) error {
	if orderID == "" {
		fmt.Fprintln(out, "no order yet")
		return nil
	}
	order, err := svc.GetOrder(ctx, orderID)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(order)
}
