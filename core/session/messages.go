package session

import (
	"encoding/json"
	"time"
)

// MessageType 消息类型
type MessageType string

const (
	// 客户端 -> 服务端
	MsgTypeKey      MessageType = "key"      // 键盘输入
	MsgTypeNavigate MessageType = "navigate" // 跳转到 cue（服务端回发同名事件）
	MsgTypePlay     MessageType = "play"     // 播放
	MsgTypePause    MessageType = "pause"    // 暂停
	MsgTypeToggle   MessageType = "toggle"   // 播放/暂停切换
	MsgTypeNext     MessageType = "next"     // 下一个 cue
	MsgTypePrev     MessageType = "prev"     // 上一个 cue
	MsgTypeSeek     MessageType = "seek"     // 定位
	MsgTypeMute     MessageType = "mute"     // 静音
	MsgTypeRate     MessageType = "rate"     // 播放速率（服务端回发同名事件）
	MsgTypePing     MessageType = "ping"     // 心跳

	// 服务端 -> 客户端
	MsgTypeSnapshot MessageType = "snapshot" // 合奏状态快照
	MsgTypeFade     MessageType = "fade"     // 渐变开始/结束
	MsgTypeState    MessageType = "state"    // 单音轨播放状态变化
	MsgTypePong     MessageType = "pong"     // 心跳响应
	MsgTypeError    MessageType = "error"    // 错误消息
)

// WSMessage WebSocket 消息结构
type WSMessage struct {
	Type      MessageType     `json:"type"`
	SessionID string          `json:"sessionId,omitempty"`
	ClientID  string          `json:"clientId,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// NewMessage 构造带数据的消息
func NewMessage(t MessageType, data interface{}) (*WSMessage, error) {
	msg := &WSMessage{Type: t, Timestamp: time.Now().UnixMilli()}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, err
		}
		msg.Data = raw
	}
	return msg, nil
}

// KeyData 键盘输入
type KeyData struct {
	Key string `json:"key"`
}

// NavigateData 跳转请求：按 cueId，或按小节/拍
type NavigateData struct {
	TrackID string `json:"trackId"`
	CueID   string `json:"cueId,omitempty"`
	Measure int    `json:"measure,omitempty"`
	Beat    *int   `json:"beat,omitempty"`
}

// SeekData 定位请求
type SeekData struct {
	TrackID  string  `json:"trackId"`
	Position float64 `json:"position"` // 秒
}

// MuteData 静音请求，TrackID 为空表示全部音轨
type MuteData struct {
	TrackID string `json:"trackId,omitempty"`
	Muted   bool   `json:"muted"`
}

// RateData 速率请求或通知
type RateData struct {
	TrackID string  `json:"trackId"`
	Rate    float64 `json:"rate"`
}

// StateData 播放状态变化通知
type StateData struct {
	TrackID string `json:"trackId"`
	State   string `json:"state"`
}

// ErrorData 错误消息
type ErrorData struct {
	Message string `json:"message"`
}
