package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/3obby/voicelink/internal/config"
	"github.com/3obby/voicelink/internal/control"
	"github.com/3obby/voicelink/internal/daemon"
)

func main() {
	_ = rootCmd.Execute()
}

var rootCmd = &cobra.Command{
	Use:   "voicelink",
	Short: "Realtime voice sessions for AI companion chat",
}

func init() {
	rootCmd.AddCommand(
		serveCmd(),
		startCmd(),
		stopCmd(),
		statusCmd(),
		sayCmd(),
		versionCmd(),
		stopDaemonCmd(),
	)
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			manager, err := config.NewManager()
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			defer manager.Stop()

			d := daemon.New(manager)
			if err := manager.StartWatching(cmd.Context()); err != nil {
				return fmt.Errorf("failed to watch configuration: %w", err)
			}
			return d.Run()
		},
	}
}

func startCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start a voice session",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := control.SendCommand(control.CmdBegin, "")
			if err != nil {
				return fmt.Errorf("failed to start session: %w", err)
			}
			fmt.Print(resp)
			return nil
		},
	}
}

func stopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the current voice session",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := control.SendCommand(control.CmdEnd, "")
			if err != nil {
				return fmt.Errorf("failed to stop session: %w", err)
			}
			fmt.Print(resp)
			return nil
		},
	}
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Get current session status",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := control.SendCommand(control.CmdStatus, "")
			if err != nil {
				return fmt.Errorf("failed to get status: %w", err)
			}
			fmt.Print(resp)
			return nil
		},
	}
}

func sayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "say <text>",
		Short: "Send a text message into the active session",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := control.SendCommand(control.CmdSay, strings.Join(args, " "))
			if err != nil {
				return fmt.Errorf("failed to send text: %w", err)
			}
			fmt.Print(resp)
			return nil
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Get protocol version",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := control.SendCommand(control.CmdVersion, "")
			if err != nil {
				return fmt.Errorf("failed to get version: %w", err)
			}
			fmt.Print(resp)
			return nil
		},
	}
}

func stopDaemonCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop-daemon",
		Short: "Stop the daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := control.SendCommand(control.CmdQuit, "")
			if err != nil {
				return fmt.Errorf("failed to stop daemon: %w", err)
			}
			fmt.Print(resp)
			return nil
		},
	}
}
