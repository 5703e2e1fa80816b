package cmd

import (
	"github.com/spf13/cobra"

	"Replayer/server"
)

var (
	serverAddr    string
	serverFile    string
	serverSync    string
	serverMulti   bool
	serverNoWatch bool
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "启动 Replayer 服务器",
	Long:  `启动 HTTP/WebSocket 服务器，托管播放会话，可选加载并监听合集文件`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		flags := cmd.Flags()
		if flags.Changed("addr") {
			cfg.HTTPAddr = serverAddr
		}
		if flags.Changed("file") {
			cfg.CompilationFile = serverFile
		}
		if flags.Changed("sync") {
			cfg.SyncMode = serverSync
		}
		if flags.Changed("multitrack") {
			cfg.Multitrack = serverMulti
		}
		if serverNoWatch {
			cfg.WatchCompilation = false
		}
		return server.Start(cfg)
	},
}

func init() {
	serverCmd.Flags().StringVarP(&serverAddr, "addr", "a", ":8080", "监听地址")
	serverCmd.Flags().StringVarP(&serverFile, "file", "f", "", "启动时加载的合集文件")
	serverCmd.Flags().StringVar(&serverSync, "sync", "seek", "同步修正方式 (seek, rate)")
	serverCmd.Flags().BoolVar(&serverMulti, "multitrack", false, "导航时同时控制所有音轨")
	serverCmd.Flags().BoolVar(&serverNoWatch, "no-watch", false, "不监听合集文件变更")
	rootCmd.AddCommand(serverCmd)
}
