package cmd

import (
	"github.com/spf13/cobra"
	"movement-analysis/config"
	server2 "movement-analysis/server"
)

func server(config *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "server",
		Short: "serve the upload API and the annotated videos",
		Run: func(cmd *cobra.Command, args []string) {
			server2.RunHttp(config)
		},
	}

	cmd.Flags().StringVarP(&config.Server.HttpPort, "port", "p", config.Server.HttpPort, "port to listen on")
	cmd.Flags().StringVar(&config.Storage.UploadDir, "upload-dir", config.Storage.UploadDir, "directory for uploads and annotated videos")
	return cmd
}
