// Package tasks defines the structure for tasks that are sent to Kafka.
package tasks

// AssemblyTask 是一次异步装配请求。
type AssemblyTask struct {
	RequestID       string `json:"request_id"`
	ConfigName      string `json:"config_name"`
	EngineArchiveID uint   `json:"engine_archive_id"`
	ModArchiveID    uint   `json:"mod_archive_id"`
	Variant         string `json:"variant"`
}
