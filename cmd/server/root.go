package main

import "github.com/spf13/cobra"

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "frigate-wa-bridge",
		Short:         "Relay Frigate NVR events to WhatsApp",
		Long:          "frigate-wa-bridge subscribes to Frigate's MQTT topics, keeps a WhatsApp account linked and pushes camera events to mapped WhatsApp groups and dashboard sockets.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	serve := newServeCmd()
	rootCmd.RunE = serve.RunE
	rootCmd.AddCommand(
		serve,
		newTokenCmd(),
		newVersionCmd(),
	)
	return rootCmd
}
