// Package compilation 读取 JSON 合集文件，并在文件变化时重新加载
package compilation

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"Replayer/model"
)

// Decode 解析合集 JSON，排序并校验
func Decode(r io.Reader) (*model.Compilation, error) {
	var c model.Compilation
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&c); err != nil {
		return nil, fmt.Errorf("解析合集失败: %w", err)
	}
	if c.ID == "" {
		return nil, errors.New("合集缺少 id")
	}
	seen := make(map[string]bool, len(c.Tracks))
	for _, tr := range c.Tracks {
		if tr.ID == "" {
			return nil, fmt.Errorf("合集 %s 中存在缺少 id 的音轨", c.ID)
		}
		if seen[tr.ID] {
			return nil, fmt.Errorf("合集 %s 中音轨 id 重复: %s", c.ID, tr.ID)
		}
		seen[tr.ID] = true
	}
	c.Normalize()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// LoadFile 从文件加载合集
func LoadFile(path string) (*model.Compilation, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("打开合集文件失败: %w", err)
	}
	defer f.Close()
	c, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}
