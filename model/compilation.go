package model

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

var (
	ErrDuplicateMnemonic = errors.New("duplicate cue mnemonic")
	ErrInvalidMnemonic   = errors.New("cue mnemonic must consist of digits")
	ErrInvalidMetrical   = errors.New("invalid metrical position")
)

// MediaKind 决定音轨使用哪种播放资源
type MediaKind string

const (
	MediaKindLocal    MediaKind = "local"    // 进程内媒体元素
	MediaKindEmbedded MediaKind = "embedded" // 通过异步控制接口访问的外部嵌入播放器
)

// MetricalPosition 小节/拍位置，作为时间之外的另一种 cue 寻址方式
type MetricalPosition struct {
	Measure int  `json:"measure" gorm:"column:measure"`
	Beat    *int `json:"beat,omitempty" gorm:"column:beat"`
}

// String 输出 "12" 或 "12.3"
func (p MetricalPosition) String() string {
	if p.Beat == nil {
		return strconv.Itoa(p.Measure)
	}
	return fmt.Sprintf("%d.%d", p.Measure, *p.Beat)
}

// Before 判断 p 是否严格早于 other，无拍号视为该小节第一拍
func (p MetricalPosition) Before(other MetricalPosition) bool {
	if p.Measure != other.Measure {
		return p.Measure < other.Measure
	}
	return p.beat() < other.beat()
}

func (p MetricalPosition) beat() int {
	if p.Beat == nil {
		return 1
	}
	return *p.Beat
}

// ParseMetricalPosition 解析 "12" 或 "12.3"
func ParseMetricalPosition(s string) (MetricalPosition, error) {
	measurePart, beatPart, hasBeat := strings.Cut(strings.TrimSpace(s), ".")
	measure, err := strconv.Atoi(measurePart)
	if err != nil || measure < 1 {
		return MetricalPosition{}, fmt.Errorf("%w: %q", ErrInvalidMetrical, s)
	}
	pos := MetricalPosition{Measure: measure}
	if hasBeat {
		beat, err := strconv.Atoi(beatPart)
		if err != nil || beat < 1 {
			return MetricalPosition{}, fmt.Errorf("%w: %q", ErrInvalidMetrical, s)
		}
		pos.Beat = &beat
	}
	return pos, nil
}

// Cue 音轨内命名的跳转点
type Cue struct {
	ID          string            `json:"id" gorm:"primaryKey;size:64"`
	TrackID     string            `json:"trackId" gorm:"size:64;index;not null"`
	Description string            `json:"description" gorm:"size:255"`
	Time        float64           `json:"time"`                                          // 秒
	Shortcut    string            `json:"shortcut,omitempty" gorm:"size:16"`             // 数字助记键
	Metrical    *MetricalPosition `json:"metrical,omitempty" gorm:"embedded;embeddedPrefix:metrical_"`
	SortOrder   int               `json:"sortOrder" gorm:"default:0"`
}

// TableName 指定表名
func (Cue) TableName() string {
	return "cues"
}

// Track 一个媒体资源及其有序 cue 列表
type Track struct {
	ID            string    `json:"id" gorm:"primaryKey;size:64"`
	CompilationID string    `json:"compilationId" gorm:"size:64;index;not null"`
	Name          string    `json:"name" gorm:"size:255"`
	Artist        string    `json:"artist" gorm:"size:255"`
	Album         string    `json:"album" gorm:"size:255"`
	URL           string    `json:"url" gorm:"size:1024"`
	MediaKind     MediaKind `json:"mediaKind" gorm:"size:20;default:'local'"`
	Duration      float64   `json:"duration"` // 秒，声明值
	SortOrder     int       `json:"sortOrder" gorm:"default:0"`
	Cues          []Cue     `json:"cues" gorm:"foreignKey:TrackID;constraint:OnDelete:CASCADE"`
}

// TableName 指定表名
func (Track) TableName() string {
	return "tracks"
}

// CueByID 在音轨内查找 cue
func (t *Track) CueByID(cueID string) (*Cue, bool) {
	for i := range t.Cues {
		if t.Cues[i].ID == cueID {
			return &t.Cues[i], true
		}
	}
	return nil, false
}

// CueIndexAt 返回位置 seconds 所在 cue 的下标（时间 <= seconds 的最后一个），没有则 -1
func (t *Track) CueIndexAt(seconds float64) int {
	idx := -1
	for i, c := range t.Cues {
		if c.Time <= seconds {
			idx = i
		} else {
			break
		}
	}
	return idx
}

// CueAtMeasure 查找小节位置对应的 cue：优先精确匹配，否则取不晚于该位置的最后一个
func (t *Track) CueAtMeasure(pos MetricalPosition) (*Cue, bool) {
	var best *Cue
	for i := range t.Cues {
		c := &t.Cues[i]
		if c.Metrical == nil {
			continue
		}
		if c.Metrical.Measure == pos.Measure && (pos.Beat == nil || c.Metrical.beat() == *pos.Beat) {
			return c, true
		}
		if !pos.Before(*c.Metrical) {
			if best == nil || best.Metrical.Before(*c.Metrical) {
				best = c
			}
		}
	}
	return best, best != nil
}

// Compilation 一次加载的全部音轨及共享元数据
type Compilation struct {
	ID        string    `json:"id" gorm:"primaryKey;size:64"`
	Title     string    `json:"title" gorm:"size:255"`
	Artist    string    `json:"artist" gorm:"size:255"`
	Album     string    `json:"album" gorm:"size:255"`
	Tracks    []Track   `json:"tracks" gorm:"foreignKey:CompilationID;constraint:OnDelete:CASCADE"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// TableName 指定表名
func (Compilation) TableName() string {
	return "compilations"
}

// Track 按ID查找音轨
func (c *Compilation) Track(trackID string) (*Track, bool) {
	if c == nil {
		return nil, false
	}
	for i := range c.Tracks {
		if c.Tracks[i].ID == trackID {
			return &c.Tracks[i], true
		}
	}
	return nil, false
}

// Normalize 按 SortOrder 排列音轨，按时间稳定排序每个音轨的 cue，并补齐外键
func (c *Compilation) Normalize() {
	sort.SliceStable(c.Tracks, func(i, j int) bool {
		return c.Tracks[i].SortOrder < c.Tracks[j].SortOrder
	})
	for i := range c.Tracks {
		tr := &c.Tracks[i]
		tr.CompilationID = c.ID
		if tr.MediaKind == "" {
			tr.MediaKind = MediaKindLocal
		}
		sort.SliceStable(tr.Cues, func(a, b int) bool {
			return tr.Cues[a].Time < tr.Cues[b].Time
		})
		for j := range tr.Cues {
			tr.Cues[j].TrackID = tr.ID
			tr.Cues[j].SortOrder = j
		}
	}
}

// Validate 检查助记键格式以及整个合集内的唯一性
func (c *Compilation) Validate() error {
	seen := make(map[string]string)
	for _, tr := range c.Tracks {
		for _, cue := range tr.Cues {
			if cue.Shortcut == "" {
				continue
			}
			if !IsDigits(cue.Shortcut) {
				return fmt.Errorf("%w: cue %s has %q", ErrInvalidMnemonic, cue.ID, cue.Shortcut)
			}
			if other, ok := seen[cue.Shortcut]; ok {
				return fmt.Errorf("%w: %q used by cues %s and %s", ErrDuplicateMnemonic, cue.Shortcut, other, cue.ID)
			}
			seen[cue.Shortcut] = cue.ID
		}
	}
	return nil
}

// IsDigits 判断字符串非空且只包含 ASCII 数字
func IsDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
