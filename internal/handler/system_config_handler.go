package handler

import (
	"net/http"

	"archive-depot-go/internal/pipeline"
	"archive-depot-go/internal/service"

	"github.com/gin-gonic/gin"
)

// SystemConfigHandler 负责系统配置的装配和查询请求。
type SystemConfigHandler struct {
	assembler     *pipeline.Assembler
	configService service.SystemConfigService
}

// NewSystemConfigHandler 创建一个新的 SystemConfigHandler 实例。
func NewSystemConfigHandler(assembler *pipeline.Assembler, configService service.SystemConfigService) *SystemConfigHandler {
	return &SystemConfigHandler{assembler: assembler, configService: configService}
}

// AssembleRequest 定义了装配系统配置的请求体结构。
type AssembleRequest struct {
	Name     string `json:"name"`
	EngineID uint   `json:"engineId" binding:"required"`
	ModID    uint   `json:"modId" binding:"required"`
	Variant  string `json:"variant"`
}

// Assemble 同步执行装配，成功返回 201 和新建的配置。
func (h *SystemConfigHandler) Assemble(c *gin.Context) {
	var req AssembleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "无效的请求负载：engineId 与 modId 不能为空")
		return
	}
	cfg, err := h.assembler.Assemble(c.Request.Context(), pipeline.AssembleRequest{
		ConfigName:      req.Name,
		EngineArchiveID: req.EngineID,
		ModArchiveID:    req.ModID,
		Variant:         req.Variant,
	})
	if err != nil {
		writeError(c, "Assemble", err)
		return
	}
	writeOK(c, http.StatusCreated, "系统配置已创建", cfg)
}

// AssembleAsync 将装配任务投递到 Kafka，返回 202 和请求 ID。
func (h *SystemConfigHandler) AssembleAsync(c *gin.Context) {
	var req AssembleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "无效的请求负载：engineId 与 modId 不能为空")
		return
	}
	requestID, err := h.configService.SubmitAsync(c.Request.Context(), req.Name, req.EngineID, req.ModID, req.Variant)
	if err != nil {
		writeError(c, "AssembleAsync", err)
		return
	}
	writeOK(c, http.StatusAccepted, "装配任务已提交", gin.H{"requestId": requestID})
}

// List 返回所有系统配置。
func (h *SystemConfigHandler) List(c *gin.Context) {
	cfgs, err := h.configService.List()
	if err != nil {
		writeError(c, "ListSystemConfigs", err)
		return
	}
	writeOK(c, http.StatusOK, "success", cfgs)
}

// Get 返回单个系统配置。
func (h *SystemConfigHandler) Get(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	cfg, err := h.configService.Get(id)
	if err != nil {
		writeError(c, "GetSystemConfig", err)
		return
	}
	writeOK(c, http.StatusOK, "success", cfg)
}
