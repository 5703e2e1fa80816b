package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"Replayer/core/compilation"
	"Replayer/storage"
)

var (
	minioPrefix string
	minioFile   string
)

var minioCmd = &cobra.Command{
	Use:   "minio",
	Short: "MinIO媒体存储检查",
	Long:  `列出媒体存储桶中的文件；指定合集文件时检查每个音轨的媒体是否存在。`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "MinIO配置: %s, Bucket: %s\n", cfg.MinioEndpoint, cfg.MinioBucket)

		store, err := storage.NewMediaStore(cfg)
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if minioFile != "" {
			c, err := compilation.LoadFile(minioFile)
			if err != nil {
				return err
			}
			missing := 0
			for _, tr := range c.Tracks {
				ok, err := store.Available(ctx, tr.URL)
				if err != nil {
					return err
				}
				status := "✅"
				if !ok {
					status = "❌"
					missing++
				}
				fmt.Fprintf(out, "%s %-16s %s\n", status, tr.ID, storage.ObjectKey(tr.URL))
			}
			fmt.Fprintf(out, "\n%d 个音轨，%d 个媒体缺失\n", len(c.Tracks), missing)
			return nil
		}

		objects, err := store.List(ctx, minioPrefix)
		if err != nil {
			return err
		}
		var total int64
		for _, obj := range objects {
			total += obj.Size
			fmt.Fprintf(out, "%-60s %10d  %s\n", obj.Key, obj.Size, obj.LastModified.Format(time.DateTime))
		}
		fmt.Fprintf(out, "\n共 %d 个文件，%.2f MB\n", len(objects), float64(total)/1024/1024)
		return nil
	},
}

func init() {
	minioCmd.Flags().StringVarP(&minioPrefix, "prefix", "p", "", "对象前缀")
	minioCmd.Flags().StringVarP(&minioFile, "file", "f", "", "检查合集文件中音轨的媒体")
	rootCmd.AddCommand(minioCmd)
}
