package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"Replayer/cache"
)

var redisSession string

var redisCmd = &cobra.Command{
	Use:   "redis",
	Short: "Redis连接测试",
	Long:  `测试快照发布所用的Redis连接，并显示最近发布的会话快照。`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Redis配置: %s, DB: %d\n", cfg.RedisAddr(), cfg.RedisDB)

		if err := cache.ConnectRedis(cfg); err != nil {
			return fmt.Errorf("无法连接到Redis: %w", err)
		}
		defer cache.CloseRedis()
		fmt.Fprintln(out, "Redis连接成功！")

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := cache.TestRedis(ctx, cache.RedisClient); err != nil {
			return fmt.Errorf("Redis操作测试失败: %w", err)
		}
		fmt.Fprintln(out, "Redis基本操作测试成功！")

		snapshots := cache.NewSnapshotCache(cache.RedisClient, cfg.SnapshotTTL)
		sessionID := redisSession
		if sessionID == "" {
			latest, err := snapshots.LatestSessionID(ctx)
			if err != nil {
				return err
			}
			if latest == "" {
				fmt.Fprintln(out, "没有最近发布的会话快照")
				return nil
			}
			sessionID = latest
		}

		snap, err := snapshots.GetSnapshot(ctx, sessionID)
		if err != nil {
			return err
		}
		if snap == nil {
			fmt.Fprintf(out, "会话 %s 没有快照\n", sessionID)
			return nil
		}
		fmt.Fprintf(out, "会话 %s: 合集 %s, 当前音轨 %s, 位置 %.3fs, 全部播放 %v, %d 个音轨\n",
			snap.SessionID, snap.CompilationID, snap.ActiveTrackID, snap.AllTrackPosition, snap.AllPlaying, len(snap.Tracks))
		for _, tr := range snap.Tracks {
			fmt.Fprintf(out, "  %-16s %-12s %8.3fs rate=%.2f gain=%.2f muted=%v\n",
				tr.TrackID, tr.State, tr.Position, tr.PlaybackRate, tr.Gain, tr.Muted)
		}
		return nil
	},
}

func init() {
	redisCmd.Flags().StringVarP(&redisSession, "session", "s", "", "会话ID，默认最近发布的会话")
	rootCmd.AddCommand(redisCmd)
}
