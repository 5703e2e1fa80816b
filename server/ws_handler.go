package server

import (
	"context"
	"net/http"

	"Replayer/core/session"
	"Replayer/logger"
)

// WebSocketHandler 建立会话 WebSocket 连接。持有有效令牌的客户端可以发送控制消息，
// 其余客户端只接收快照和事件
func (s *Server) WebSocketHandler(w http.ResponseWriter, r *http.Request) {
	canControl := s.canControl(r)

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("WebSocket 升级失败", logger.ErrorField(err))
		return
	}

	hub := s.session.Hub()
	client := session.NewClient(hub, conn, canControl)
	hub.Register(client)

	// 启动读写协程
	go client.WritePump()
	go client.ReadPump(context.Background(), s.session.HandleMessage)

	if snap, err := s.session.Snapshot(); err == nil {
		if msg, err := session.NewMessage(session.MsgTypeSnapshot, snap); err == nil {
			client.SendMessage(msg)
		}
	}

	logger.Info("WebSocket 连接建立",
		logger.String("session", s.session.ID()),
		logger.String("client", client.ID),
		logger.Bool("canControl", canControl))
}
