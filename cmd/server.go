package cmd

import (
	"musicbox/server"

	"github.com/spf13/cobra"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "启动musicbox服务器",
	Long:  `启动HTTP服务器，提供上传、播放和曲目列表功能。收到SIGINT或SIGTERM后优雅退出。`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return server.Start(cfg)
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)
}
