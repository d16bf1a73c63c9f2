package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mailtide/mailtide/internal/app"
)

var (
	sendTemplateID string
	sendRecipient  string
	sendUserID     string
)

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send a single test email through the engine",
	Long:  `Send renders a template for one recipient and delivers it through the transport resolved for the user, without touching any campaign.`,
	RunE:  runSend,
}

func init() {
	sendCmd.Flags().StringVar(&sendTemplateID, "template", "", "template id")
	sendCmd.Flags().StringVar(&sendRecipient, "to", "", "recipient email address")
	sendCmd.Flags().StringVar(&sendUserID, "user", "", "user id whose transport settings to use")
	sendCmd.MarkFlagRequired("template")
	sendCmd.MarkFlagRequired("to")
	sendCmd.MarkFlagRequired("user")

	rootCmd.AddCommand(sendCmd)
}

func runSend(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	application, err := app.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}
	defer application.Shutdown(context.Background())

	res, err := application.SendTestEmail(context.Background(), sendTemplateID, sendRecipient, sendUserID)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}
