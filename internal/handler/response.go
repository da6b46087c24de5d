// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"net/http"
	"strconv"

	"archive-depot-go/pkg/apperr"
	"archive-depot-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// statusOf 将错误分类映射为 HTTP 状态码。
func statusOf(kind apperr.Kind) int {
	switch kind {
	case apperr.InvalidArgument:
		return http.StatusBadRequest
	case apperr.NotFound:
		return http.StatusNotFound
	case apperr.Conflict:
		return http.StatusConflict
	case apperr.Unavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeError 输出统一格式的错误响应，data 中带上错误分类。
func writeError(c *gin.Context, handlerName string, err error) {
	kind := apperr.KindOf(err)
	status := statusOf(kind)
	if status >= http.StatusInternalServerError {
		log.Errorf("%s: 请求处理失败, kind: %s, error: %v", handlerName, kind, err)
	} else {
		log.Warnf("%s: 请求被拒绝, kind: %s, error: %v", handlerName, kind, err)
	}
	c.JSON(status, gin.H{
		"code":    status,
		"message": err.Error(),
		"data":    gin.H{"kind": kind.String()},
	})
}

func writeOK(c *gin.Context, status int, message string, data interface{}) {
	c.JSON(status, gin.H{
		"code":    status,
		"message": message,
		"data":    data,
	})
}

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, gin.H{
		"code":    http.StatusBadRequest,
		"message": message,
		"data":    gin.H{"kind": apperr.InvalidArgument.String()},
	})
}

// parseID 读取路径参数中的数字 ID。
func parseID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		badRequest(c, "无效的 ID")
		return 0, false
	}
	return uint(id), true
}
