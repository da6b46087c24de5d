package handler

import (
	"net/http"

	"archive-depot-go/internal/service"
	"archive-depot-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// ArchiveHandler 负责处理归档的上传和管理请求。
type ArchiveHandler struct {
	archiveService service.ArchiveService
	maxUploadBytes int64
}

// NewArchiveHandler 创建一个新的 ArchiveHandler 实例。maxUploadMB 为 0 表示不限制。
func NewArchiveHandler(archiveService service.ArchiveService, maxUploadMB int64) *ArchiveHandler {
	return &ArchiveHandler{archiveService: archiveService, maxUploadBytes: maxUploadMB << 20}
}

// Upload 处理 multipart 上传：file 为归档内容，fileName 缺省时使用上传文件名。
func (h *ArchiveHandler) Upload(c *gin.Context) {
	if h.maxUploadBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes)
	}
	fileHeader, err := c.FormFile("file")
	if err != nil {
		log.Warnf("Upload: 缺少上传文件, error: %v", err)
		badRequest(c, "缺少上传文件或文件过大")
		return
	}
	fileName := c.PostForm("fileName")
	if fileName == "" {
		fileName = fileHeader.Filename
	}
	extractTo := c.PostForm("extractTo")

	f, err := fileHeader.Open()
	if err != nil {
		log.Error("Upload: 打开上传文件失败", err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "服务器内部错误", "data": nil})
		return
	}
	defer f.Close()

	archive, err := h.archiveService.Upload(c.Request.Context(), fileName, extractTo, f)
	if err != nil {
		writeError(c, "Upload", err)
		return
	}
	writeOK(c, http.StatusCreated, "归档上传成功", archive)
}

// List 返回所有归档记录。
func (h *ArchiveHandler) List(c *gin.Context) {
	archives, err := h.archiveService.List()
	if err != nil {
		writeError(c, "ListArchives", err)
		return
	}
	writeOK(c, http.StatusOK, "success", archives)
}

// Get 返回单个归档记录。
func (h *ArchiveHandler) Get(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	archive, err := h.archiveService.Get(id)
	if err != nil {
		writeError(c, "GetArchive", err)
		return
	}
	writeOK(c, http.StatusOK, "success", archive)
}

// UpdateArchiveRequest 定义了修改归档记录的请求体结构。
type UpdateArchiveRequest struct {
	ZipName   string `json:"zipName" binding:"required"`
	ExtractTo string `json:"extractTo" binding:"required"`
	ZipHash   string `json:"zipHash" binding:"required"`
}

// Update 修改归档记录，不会触碰存储中的文件。
func (h *ArchiveHandler) Update(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req UpdateArchiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "无效的请求负载")
		return
	}
	archive, err := h.archiveService.Update(id, req.ZipName, req.ExtractTo, req.ZipHash)
	if err != nil {
		writeError(c, "UpdateArchive", err)
		return
	}
	writeOK(c, http.StatusOK, "归档已更新", archive)
}

// Delete 删除归档记录。
func (h *ArchiveHandler) Delete(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	if err := h.archiveService.Delete(id); err != nil {
		writeError(c, "DeleteArchive", err)
		return
	}
	writeOK(c, http.StatusOK, "归档已删除", nil)
}
