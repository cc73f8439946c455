package pushgateway

import (
	"context"
	"net/http"

	"github.com/gorilla/websocket"

	"storefront/internal/pkg/logger"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool { // 简化处理，允许所有跨域
		return true
	},
}

// Handler 把 HTTP 连接升级为 WebSocket 并注册到 Hub
type Handler struct {
	hub      *Hub
	presence Presence // 可以为 nil
}

func NewHandler(hub *Hub, presence Presence) *Handler {
	return &Handler{hub: hub, presence: presence}
}

func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /ws", h.serveWs)
}

func (h *Handler) serveWs(w http.ResponseWriter, r *http.Request) {
	// 1. 从URL参数获取UserID
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		http.Error(w, "userId is required", http.StatusBadRequest)
		return
	}

	// 2. HTTP升级为WebSocket
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Ctx(r.Context()).Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	// 3. 创建客户端实例并注册到Hub
	client := &Client{hub: h.hub, conn: conn, send: make(chan []byte, sendBuffer), userID: userID}
	if !h.hub.join(client) {
		_ = conn.Close()
		return
	}

	// 4. 在Redis中记录该用户连接的网关节点，失败不影响推送
	ctx := context.WithoutCancel(r.Context())
	if h.presence != nil {
		if err := h.presence.SetUserGateway(ctx, userID, h.hub.nodeID); err != nil {
			logger.Ctx(ctx).Warn().Err(err).Str("user", userID).Msg("failed to record presence")
		}
	}

	// 5. 启动读写goroutine
	go client.writePump()
	go client.readPump(func() {
		h.hub.leave(client)
		if h.presence != nil {
			if err := h.presence.RemoveUser(ctx, userID, h.hub.nodeID); err != nil {
				logger.Ctx(ctx).Warn().Err(err).Str("user", userID).Msg("failed to clear presence")
			}
		}
	})
}
