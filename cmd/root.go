package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"Replayer/config"
	"Replayer/logger"
	"Replayer/server"
)

var rootCmd = &cobra.Command{
	Use:   "replayer",
	Short: "Replayer 多轨播放与 cue 导航服务",
	RunE: func(cmd *cobra.Command, args []string) error {
		return server.Start(loadConfig())
	},
}

// loadConfig 加载配置并初始化日志
func loadConfig() *config.Config {
	cfg := config.Load()
	logger.InitLogger(logger.Config{
		Level:      logger.ParseLevel(cfg.LogLevel),
		Console:    cfg.LogPretty,
		OutputPath: cfg.LogFile,
		MaxSize:    100,
		MaxBackups: 5,
		MaxAge:     30,
		Compress:   true,
	})
	return cfg
}

// Execute executes the root command.
func Execute() {
	defer logger.Sync()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
