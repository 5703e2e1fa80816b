package session

import (
	"context"
	"encoding/json"
	"errors"

	"Replayer/logger"
	"Replayer/model"
)

var errControlDenied = errors.New("control not permitted")

// ========== 消息处理器 ==========

// HandleMessage 处理 WebSocket 消息，失败时向发送者回复错误消息
func (s *Session) HandleMessage(ctx context.Context, client *Client, msg *WSMessage) {
	if err := s.dispatchMessage(client, msg); err != nil {
		logger.Warn("处理消息失败",
			logger.String("session", s.id),
			logger.String("client", client.ID),
			logger.String("type", string(msg.Type)),
			logger.ErrorField(err))
		client.SendError(err.Error())
	}
}

func (s *Session) dispatchMessage(client *Client, msg *WSMessage) error {
	// 兼容前端把 data 序列化两次的情况
	data := msg.Data
	if len(data) > 0 && data[0] == '"' {
		var decoded string
		if err := json.Unmarshal(data, &decoded); err == nil {
			data = json.RawMessage(decoded)
		}
	}

	if !client.CanControl {
		return errControlDenied
	}

	switch msg.Type {
	case MsgTypeKey:
		var d KeyData
		if err := json.Unmarshal(data, &d); err != nil {
			return err
		}
		_, err := s.HandleKey(d.Key)
		return err

	case MsgTypeNavigate:
		var d NavigateData
		if err := json.Unmarshal(data, &d); err != nil {
			return err
		}
		if d.CueID == "" && d.Measure > 0 {
			return s.NavigateToMeasure(d.TrackID, model.MetricalPosition{Measure: d.Measure, Beat: d.Beat})
		}
		return s.NavigateToCue(d.TrackID, d.CueID)

	case MsgTypePlay:
		return s.Play()

	case MsgTypePause:
		return s.Pause()

	case MsgTypeToggle:
		return s.Toggle()

	case MsgTypeNext:
		return s.NextCue()

	case MsgTypePrev:
		return s.PreviousCue()

	case MsgTypeSeek:
		var d SeekData
		if err := json.Unmarshal(data, &d); err != nil {
			return err
		}
		return s.Seek(d.TrackID, d.Position)

	case MsgTypeMute:
		var d MuteData
		if err := json.Unmarshal(data, &d); err != nil {
			return err
		}
		return s.Mute(d.TrackID, d.Muted)

	case MsgTypeRate:
		var d RateData
		if err := json.Unmarshal(data, &d); err != nil {
			return err
		}
		return s.SetRate(d.TrackID, d.Rate)

	default:
		logger.Debug("忽略未知消息类型", logger.String("type", string(msg.Type)))
		return nil
	}
}
