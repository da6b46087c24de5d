package handler

import (
	"net/http"
	"time"

	"archive-depot-go/internal/service"
	"archive-depot-go/pkg/log"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // 允许所有来源
	},
}

// DownloadHandler 负责远程下载任务的创建和进度查询。
type DownloadHandler struct {
	downloadService service.DownloadService
	pushInterval    time.Duration
}

// NewDownloadHandler 创建一个新的 DownloadHandler 实例。pushInterval 是 WebSocket 推送进度的间隔。
func NewDownloadHandler(downloadService service.DownloadService, pushInterval time.Duration) *DownloadHandler {
	if pushInterval <= 0 {
		pushInterval = 500 * time.Millisecond
	}
	return &DownloadHandler{downloadService: downloadService, pushInterval: pushInterval}
}

// StartDownloadRequest 定义了创建下载任务的请求体结构。
type StartDownloadRequest struct {
	Key       string `json:"key"`
	URL       string `json:"url"`
	FileName  string `json:"fileName"`
	ExtractTo string `json:"extractTo"`
}

// Start 登记下载任务并立即返回 202，传输在后台进行。
func (h *DownloadHandler) Start(c *gin.Context) {
	var req StartDownloadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "无效的请求负载")
		return
	}
	p, err := h.downloadService.StartDownload(c.Request.Context(), service.DownloadRequest{
		Key:       req.Key,
		Source:    req.URL,
		FileName:  req.FileName,
		ExtractTo: req.ExtractTo,
	})
	if err != nil {
		writeError(c, "StartDownload", err)
		return
	}
	writeOK(c, http.StatusAccepted, "下载任务已创建", p)
}

// Status 返回单个下载任务的进度。
func (h *DownloadHandler) Status(c *gin.Context) {
	p, err := h.downloadService.QueryStatus(c.Request.Context(), c.Param("key"))
	if err != nil {
		writeError(c, "DownloadStatus", err)
		return
	}
	writeOK(c, http.StatusOK, "success", p)
}

// List 返回本实例上所有下载任务的进度。
func (h *DownloadHandler) List(c *gin.Context) {
	writeOK(c, http.StatusOK, "success", h.downloadService.List())
}

// Stream 通过 WebSocket 定时推送任务进度，任务结束后推送最后一帧并关闭连接。
func (h *DownloadHandler) Stream(c *gin.Context) {
	key := c.Param("key")
	// 升级前先确认任务存在，这样未知 key 仍然得到普通的 404 响应
	if _, err := h.downloadService.QueryStatus(c.Request.Context(), key); err != nil {
		writeError(c, "StreamDownload", err)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("WebSocket 升级失败", err)
		return
	}
	defer conn.Close()
	log.Infof("下载进度订阅已建立, key: %s", key)

	// 读循环只用于感知客户端断开
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(h.pushInterval)
	defer ticker.Stop()
	for {
		p, err := h.downloadService.QueryStatus(c.Request.Context(), key)
		if err != nil {
			_ = conn.WriteJSON(gin.H{"error": err.Error()})
			return
		}
		if err := conn.WriteJSON(p); err != nil {
			log.Warnf("推送下载进度失败, key: %s, error: %v", key, err)
			return
		}
		if p.Status.Terminal() {
			_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, p.Status.String()))
			return
		}
		select {
		case <-ticker.C:
		case <-closed:
			return
		}
	}
}
