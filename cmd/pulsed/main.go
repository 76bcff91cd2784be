package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/tmarcondes/pulse/internal/config"
	"github.com/tmarcondes/pulse/internal/daemon"
	"github.com/tmarcondes/pulse/internal/session"
	"go.uber.org/fx"
)

var version = "dev"

var rootCmd = &cobra.Command{
	Use:   "pulsed",
	Short: "Messaging sync daemon",
	Long:  "pulsed keeps a local mirror of your chats in sync with the messaging server over a realtime connection, with REST polling as a fallback.",
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the sync daemon",
	RunE: func(cmd *cobra.Command, args []string) error {
		flag, _ := cmd.Flags().GetString("session")
		name := session.Resolve(flag)
		if err := session.ValidateName(name); err != nil {
			return err
		}

		app := fx.New(daemon.Module(daemon.Params{SessionName: name}))
		app.Run()
		return nil
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter config and session file",
	RunE: func(cmd *cobra.Command, args []string) error {
		flag, _ := cmd.Flags().GetString("session")
		name := session.Resolve(flag)
		if err := session.ValidateName(name); err != nil {
			return err
		}

		cfgPath := session.ConfigPath()
		if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
			if err := config.Save(cfgPath, &config.Config{DefaultSession: name}); err != nil {
				return err
			}
			fmt.Printf("wrote %s\n", cfgPath)
		}

		sessPath := session.SessionConfigPath(name)
		if _, err := os.Stat(sessPath); err == nil {
			return fmt.Errorf("session %q already configured at %s", name, sessPath)
		}
		if err := config.SaveSession(sessPath, &config.Session{
			ServerURL:  "wss://chat.example.com/ws",
			APIBaseURL: "https://chat.example.com",
		}); err != nil {
			return err
		}
		fmt.Printf("wrote %s\n", sessPath)
		fmt.Println("fill in server_url, api_base_url and session_token before running")
		return nil
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the daemon version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("pulsed", version)
	},
}

func main() {
	rootCmd.PersistentFlags().String("session", "", "session name (overrides config default)")
	configCmd.AddCommand(configInitCmd)
	rootCmd.AddCommand(runCmd, configCmd, versionCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
