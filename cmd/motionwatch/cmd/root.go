package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/swdee/go-motionwatch/internal/app"
	"github.com/swdee/go-motionwatch/internal/version"
)

var (
	opts = app.Options{Device: -1}

	rootCmd = &cobra.Command{
		Use:   "motionwatch",
		Short: "Watch a camera for motion and track moving objects.",
		Long: `Reads frames from a camera or video file, detects motion against a learned
background, tracks moving regions with escalating threat levels and stores
a capture when an object reaches the alert level.  A live view, runtime
settings and stored captures are served over HTTP.`,
		Args: cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			return app.Run(ctx, &opts)
		},
	}
)

// Execute runs the CLI and exits with a non-zero status on error
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.Flags().StringVarP(&opts.ConfigPath, "config", "c", "", "path to configuration file")
	rootCmd.Flags().StringVarP(&opts.Listen, "listen", "l", "", "HTTP listen address, overrides the configuration")
	rootCmd.Flags().IntVarP(&opts.Device, "device", "d", -1, "camera device index, overrides the configuration")
	rootCmd.Flags().StringVarP(&opts.File, "file", "f", "", "read frames from a video file instead of a camera")
	rootCmd.Flags().StringVar(&opts.LogLevel, "log-level", "", "log level (debug, info, warn, error)")
}
