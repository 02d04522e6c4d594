package chat

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/zhouzirui/talknest/backend/internal/config"
	"github.com/zhouzirui/talknest/backend/internal/middleware"
	"github.com/zhouzirui/talknest/backend/internal/model/chat"
	chatservice "github.com/zhouzirui/talknest/backend/internal/service/chat"
)

// WebSocketHandler 实时聊天通道处理器
type WebSocketHandler struct {
	registry   *chatservice.Registry
	dispatcher *chatservice.Dispatcher
	cfg        config.ChatConfig
	upgrader   websocket.Upgrader
	log        *zap.Logger

	mu       sync.Mutex
	outboxes map[chat.SessionID]*chatservice.Outbox
}

// closeGracePeriod 服务端发出关闭帧后等待客户端回应的时间
const closeGracePeriod = 2 * time.Second

// NewWebSocketHandler 创建WebSocket处理器
func NewWebSocketHandler(registry *chatservice.Registry, dispatcher *chatservice.Dispatcher, cfg config.ChatConfig, allowedOrigins []string, log *zap.Logger) *WebSocketHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &WebSocketHandler{
		registry:   registry,
		dispatcher: dispatcher,
		cfg:        cfg,
		upgrader: websocket.Upgrader{
			CheckOrigin:     middleware.OriginAllowed(allowedOrigins),
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		log:      log.Named("websocket"),
		outboxes: make(map[chat.SessionID]*chatservice.Outbox),
	}
}

// RegisterRoutes 注册WebSocket路由
func (h *WebSocketHandler) RegisterRoutes(r chi.Router) {
	r.Get("/ws", h.handleWebSocket)
}

// handleWebSocket 处理一个连接的完整生命周期
func (h *WebSocketHandler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	// 握手完成前先注册，客户端收到 101 时已能接收广播
	outbox := chatservice.NewOutbox(h.cfg.OutboxSize)
	sessionID := h.registry.Register(outbox)
	h.track(sessionID, outbox)
	defer h.untrack(sessionID)
	log := h.log.With(zap.String("session", string(sessionID)))

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn("upgrade failed", zap.Error(err))
		_, _ = h.registry.Unregister(sessionID)
		outbox.Close()
		return
	}
	defer conn.Close()
	log.Info("connected", zap.String("remote", r.RemoteAddr))

	ctx := r.Context()
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		h.writePump(conn, outbox, log)
	}()

	h.readLoop(ctx, conn, sessionID, log)

	h.dispatcher.Dispatch(ctx, chat.DisconnectEvent{SessionID: sessionID})
	outbox.Close()
	<-writerDone
}

// CloseAll 关闭所有连接的 outbox，写端随之发送正常关闭帧。
// 用于 http.Server.RegisterOnShutdown，被劫持的连接不受 Shutdown 管理。
func (h *WebSocketHandler) CloseAll() {
	h.mu.Lock()
	outboxes := make([]*chatservice.Outbox, 0, len(h.outboxes))
	for _, outbox := range h.outboxes {
		outboxes = append(outboxes, outbox)
	}
	h.mu.Unlock()

	h.log.Info("closing websocket sessions", zap.Int("count", len(outboxes)))
	for _, outbox := range outboxes {
		outbox.Close()
	}
}

// Wait 阻塞直到所有连接退出或 ctx 结束
func (h *WebSocketHandler) Wait(ctx context.Context) error {
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for {
		if h.active() == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (h *WebSocketHandler) active() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.outboxes)
}

func (h *WebSocketHandler) track(id chat.SessionID, outbox *chatservice.Outbox) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.outboxes[id] = outbox
}

func (h *WebSocketHandler) untrack(id chat.SessionID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.outboxes, id)
}

// readLoop 串行读取客户端帧，保证同一会话的事件按接收顺序分发
func (h *WebSocketHandler) readLoop(ctx context.Context, conn *websocket.Conn, sessionID chat.SessionID, log *zap.Logger) {
	if h.cfg.MaxMessageBytes > 0 {
		conn.SetReadLimit(h.cfg.MaxMessageBytes)
	}
	if h.cfg.PongWait > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(h.cfg.PongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(h.cfg.PongWait))
		})
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				log.Info("read ended", zap.Error(err))
			}
			return
		}

		if h.cfg.PongWait > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(h.cfg.PongWait))
		}

		var frame Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			log.Debug("ignoring non-JSON frame", zap.Error(err))
			continue
		}

		evt, err := decodeEvent(sessionID, frame)
		if err != nil {
			if errors.Is(err, ErrUnknownEvent) {
				log.Debug("ignoring frame", zap.Error(err))
			} else {
				log.Warn("ignoring frame", zap.Error(err))
			}
			continue
		}

		h.dispatcher.Dispatch(ctx, evt)
	}
}

// writePump 独占连接的写端：发送广播与心跳
func (h *WebSocketHandler) writePump(conn *websocket.Conn, outbox *chatservice.Outbox, log *zap.Logger) {
	var ping <-chan time.Time
	if h.cfg.PingInterval > 0 {
		ticker := time.NewTicker(h.cfg.PingInterval)
		defer ticker.Stop()
		ping = ticker.C
	}

	for {
		select {
		case msg, ok := <-outbox.Messages():
			h.setWriteDeadline(conn)
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				// 读循环仍在运行时（服务关闭），限定等待客户端回应关闭帧的时间
				_ = conn.SetReadDeadline(time.Now().Add(closeGracePeriod))
				return
			}

			frame, err := encodeMessage(msg)
			if err != nil {
				log.Error("encode failed", zap.Error(err))
				continue
			}
			if err := conn.WriteJSON(frame); err != nil {
				log.Info("write failed, closing", zap.Error(err))
				// 关闭连接以结束读循环
				_ = conn.Close()
				h.drain(outbox)
				return
			}
		case <-ping:
			h.setWriteDeadline(conn)
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				_ = conn.Close()
				h.drain(outbox)
				return
			}
		}
	}
}

func (h *WebSocketHandler) setWriteDeadline(conn *websocket.Conn) {
	if h.cfg.WriteTimeout > 0 {
		_ = conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
	}
}

// drain 丢弃写端退出后仍在排队的消息，直到会话注销并关闭 outbox
func (h *WebSocketHandler) drain(outbox *chatservice.Outbox) {
	for range outbox.Messages() {
	}
}
