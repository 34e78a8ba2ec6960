package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/capitalize-ai/imbot-relay/internal/bitrix"
	"github.com/capitalize-ai/imbot-relay/internal/middleware"
)

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Register the bot on the portal of BITRIX_WEBHOOK",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := loadRuntime()
		if err != nil {
			return err
		}
		defer func() { _ = log.Sync() }()
		if cfg.BitrixWebhook == "" {
			return fmt.Errorf("BITRIX_WEBHOOK is not configured")
		}

		client := bitrix.NewClient(bitrix.Options{HTTPClient: &http.Client{Timeout: cfg.HTTPTimeout}}, log)
		resp, err := client.Register(cmd.Context(), bitrix.MethodURL(cfg.BitrixWebhook, bitrix.MethodRegister), registrationFromConfig(cfg))
		if err != nil {
			return err
		}
		return printResponse(cmd.OutOrStdout(), "register", resp)
	},
}

var unregisterCmd = &cobra.Command{
	Use:   "unregister <BOT_ID>",
	Short: "Remove the bot from the portal of BITRIX_WEBHOOK",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := middleware.ValidateBotID(args[0]); err != nil {
			return err
		}
		cfg, log, err := loadRuntime()
		if err != nil {
			return err
		}
		defer func() { _ = log.Sync() }()
		if cfg.BitrixWebhook == "" {
			return fmt.Errorf("BITRIX_WEBHOOK is not configured")
		}

		client := bitrix.NewClient(bitrix.Options{HTTPClient: &http.Client{Timeout: cfg.HTTPTimeout}}, log)
		resp, err := client.Unregister(cmd.Context(), cfg.BitrixWebhook, args[0])
		if err != nil {
			return err
		}
		return printResponse(cmd.OutOrStdout(), "unregister", resp)
	},
}

// printResponse prints a platform response, highlighting REST errors.
func printResponse(w io.Writer, action string, resp map[string]any) error {
	data, err := json.MarshalIndent(resp, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to format response: %w", err)
	}
	if errCode, ok := resp["error"]; ok {
		fmt.Fprintf(w, "%s %s: %v\n", color.RedString("✗"), action, errCode)
	} else {
		fmt.Fprintf(w, "%s %s\n", color.GreenString("✓"), action)
	}
	fmt.Fprintln(w, string(data))
	return nil
}
