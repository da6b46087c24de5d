package model

import "fmt"

// DownloadStatus 是下载任务的状态，取值是封闭的。
type DownloadStatus int32

const (
	DownloadDownloading DownloadStatus = iota
	DownloadDone
	DownloadInserted
	DownloadFailedToInsert
	DownloadFailed
)

// AllDownloadStatuses 列出全部状态，新增状态时必须同时加入这里。
var AllDownloadStatuses = []DownloadStatus{
	DownloadDownloading,
	DownloadDone,
	DownloadInserted,
	DownloadFailedToInsert,
	DownloadFailed,
}

// String 返回对外暴露的状态字符串。
func (s DownloadStatus) String() string {
	switch s {
	case DownloadDownloading:
		return "downloading"
	case DownloadDone:
		return "done"
	case DownloadInserted:
		return "inserted"
	case DownloadFailedToInsert:
		return "failed to insert"
	case DownloadFailed:
		return "failed"
	}
	panic("unhandled download status")
}

// Terminal 表示任务是否已经结束，结束后的状态不会再变化。
func (s DownloadStatus) Terminal() bool {
	switch s {
	case DownloadDownloading, DownloadDone:
		return false
	case DownloadInserted, DownloadFailedToInsert, DownloadFailed:
		return true
	}
	panic("unhandled download status")
}

// ParseDownloadStatus 是 String 的逆操作，用于从 Redis 镜像中恢复状态。
func ParseDownloadStatus(s string) (DownloadStatus, bool) {
	for _, st := range AllDownloadStatuses {
		if st.String() == s {
			return st, true
		}
	}
	return 0, false
}

// MarshalText 让状态在 JSON 中以字符串形式输出。
func (s DownloadStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText 是 MarshalText 的逆操作。
func (s *DownloadStatus) UnmarshalText(b []byte) error {
	st, ok := ParseDownloadStatus(string(b))
	if !ok {
		return fmt.Errorf("unknown download status %q", b)
	}
	*s = st
	return nil
}

// DownloadProgress 是某个下载任务在某一时刻的快照。
// BytesReceived 与 Status 分别读取，二者之间不保证原子一致，Status 才是结束信号。
type DownloadProgress struct {
	Key           string         `json:"key"`
	FileName      string         `json:"fileName"`
	ExtractTo     string         `json:"extractTo"`
	BytesReceived int64          `json:"bytesReceived"`
	TotalBytes    int64          `json:"totalBytes"` // 远端未提供长度时为 -1
	Status        DownloadStatus `json:"status"`
	ArchiveID     uint           `json:"archiveId,omitempty"`
	Hash          string         `json:"hash,omitempty"`
	Error         string         `json:"error,omitempty"`
	StartedAt     LocalTime      `json:"startedAt"`
}
