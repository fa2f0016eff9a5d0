package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ScribeLabsAI/ScribeMi/internal/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration",
	}

	cmd.AddCommand(newConfigShowCmd())

	return cmd
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Display effective configuration after all overrides",
		Args:  cobra.NoArgs,
		RunE:  runConfigShow,
	}
}

// configOutput is the JSON schema for `config show --json`.
type configOutput struct {
	Path           string `json:"path"`
	APIURL         string `json:"api_url"`
	Region         string `json:"region"`
	ClientID       string `json:"client_id"`
	UserPoolID     string `json:"user_pool_id"`
	IdentityPoolID string `json:"identity_pool_id"`
	LogLevel       string `json:"log_level"`
	LogFormat      string `json:"log_format"`
	Timeout        string `json:"timeout"`
}

func runConfigShow(cmd *cobra.Command, _ []string) error {
	if resolvedCfg == nil {
		return fmt.Errorf("no configuration loaded")
	}

	w := cmd.OutOrStdout()

	if flagJSON {
		c := resolvedCfg

		return printJSON(w, configOutput{
			Path:           resolvedCfgPath,
			APIURL:         c.API.URL,
			Region:         c.API.Region,
			ClientID:       c.Auth.ClientID,
			UserPoolID:     c.Auth.UserPoolID,
			IdentityPoolID: c.Auth.IdentityPoolID,
			LogLevel:       c.Logging.LogLevel,
			LogFormat:      c.Logging.LogFormat,
			Timeout:        c.Network.Timeout,
		})
	}

	return config.RenderEffective(resolvedCfg, resolvedCfgPath, w)
}
