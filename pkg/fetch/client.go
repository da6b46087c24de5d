// Package fetch 提供了从远程地址流式读取归档的客户端。
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// Source 是一次打开的远程字节流。
type Source struct {
	Body io.ReadCloser
	// Size 是远端声明的长度，未知时为 -1。
	Size int64
}

// Client 是远程归档的下载客户端。
type Client struct {
	httpClient *http.Client
}

// NewClient 创建一个新的下载客户端。timeout 为 0 表示不限制整个传输的时长。
func NewClient(timeout time.Duration) *Client {
	return &Client{httpClient: &http.Client{Timeout: timeout}}
}

// Open 发起 GET 请求并返回响应体。只有 2xx 响应被视为成功。
func (c *Client) Open(ctx context.Context, sourceRef string) (*Source, error) {
	u, err := url.Parse(sourceRef)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, fmt.Errorf("不支持的下载地址 %q", sourceRef)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceRef, nil)
	if err != nil {
		return nil, fmt.Errorf("创建请求失败: %w", err)
	}
	req.Header.Set("Accept", "application/zip, application/octet-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("请求 %s 失败: %w", u.Redacted(), err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		return nil, fmt.Errorf("远端返回错误 [%d]: %s", resp.StatusCode, string(body))
	}
	return &Source{Body: resp.Body, Size: resp.ContentLength}, nil
}
