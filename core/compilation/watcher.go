package compilation

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"Replayer/logger"
	"Replayer/model"
)

// DefaultDebounce 文件停止变化多久后重新加载
const DefaultDebounce = 200 * time.Millisecond

// Watcher 监听合集文件并在内容稳定后回调
type Watcher struct {
	path     string
	debounce time.Duration
	onChange func(*model.Compilation)
}

// NewWatcher 创建监听器，onChange 只在新内容解析成功时调用
func NewWatcher(path string, debounce time.Duration, onChange func(*model.Compilation)) *Watcher {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Watcher{path: path, debounce: debounce, onChange: onChange}
}

// Run 阻塞直到 ctx 结束。监听所在目录，以兼容编辑器的重命名式保存
func (w *Watcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("创建文件监听器失败: %w", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(w.path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("监听目录失败: %w", err)
	}
	target := filepath.Clean(w.path)

	checkTicker := time.NewTicker(w.debounce / 4)
	defer checkTicker.Stop()
	var lastEvent time.Time

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				lastEvent = time.Now()
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("合集文件监听错误", logger.ErrorField(err))

		case <-checkTicker.C:
			if lastEvent.IsZero() || time.Since(lastEvent) < w.debounce {
				continue
			}
			lastEvent = time.Time{}
			c, err := LoadFile(w.path)
			if err != nil {
				logger.Warn("重新加载合集失败，保留当前合集", logger.String("path", w.path), logger.ErrorField(err))
				continue
			}
			logger.Info("合集文件已重新加载", logger.String("path", w.path), logger.String("compilationId", c.ID))
			w.onChange(c)
		}
	}
}
