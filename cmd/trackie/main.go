package main

import (
	"fmt"
	"os"

	"github.com/eleven-am/trackie/internal/bootstrap"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:          "trackie",
		Short:        "Voice and vision assistant that streams the camera, screen and microphone to a live model",
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := bootstrap.LoadConfig(configPath, cmd.Flags())
			if err != nil {
				return err
			}
			return bootstrap.Run(cfg)
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a YAML config file")
	rootCmd.Flags().String("mode", bootstrap.ModeCamera, "video source: camera, screen or none")
	rootCmd.Flags().Bool("preview", false, "serve the annotated camera preview (camera mode only)")
	rootCmd.Flags().String("preview-addr", ":8080", "preview server listen address")

	rootCmd.AddCommand(newVersionCmd(), newSessionCmd(&configPath))
	return rootCmd
}

func newSessionCmd(configPath *string) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "session <id>",
		Short: "Print a recorded session and its tool calls from the journal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := bootstrap.LoadConfig(*configPath, cmd.Flags())
			if err != nil {
				return err
			}
			return bootstrap.ShowSession(cmd.Context(), cfg, args[0], limit, cmd.OutOrStdout())
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 100, "maximum number of tool calls to print")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), bootstrap.Version)
		},
	}
}
