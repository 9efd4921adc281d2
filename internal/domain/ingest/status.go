package ingest

import (
	"context"
	"fmt"
	"time"
)

// FileStatus 文件入库状态。
// PENDING → PROCESSING → {COMPLETED | RETRY_n | FAILED}；RETRY_n 重新派发后回到 PROCESSING。
// COMPLETED 和 FAILED 是终态，只能通过外部删除记录重新进入流程。
type FileStatus string

const (
	StatusPending    FileStatus = "PENDING"
	StatusProcessing FileStatus = "PROCESSING"
	StatusCompleted  FileStatus = "COMPLETED"
	StatusRetry1     FileStatus = "RETRY_1"
	StatusRetry2     FileStatus = "RETRY_2"
	StatusRetry3     FileStatus = "RETRY_3"
	StatusFailed     FileStatus = "FAILED"
)

// MaxRetries 最大自动重试次数
const MaxRetries = 3

// MaxErrorMsgLen 持久化错误信息的最大长度
const MaxErrorMsgLen = 500

// RetryStatus 返回第 n 次重试对应的状态（n = 1..3）
func RetryStatus(n int) FileStatus {
	return FileStatus(fmt.Sprintf("RETRY_%d", n))
}

// IsTerminal 是否终态
func (s FileStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// FileRecord 文件跟踪记录，一个源文件一行。
type FileRecord struct {
	Filename  string     `json:"filename"`
	Status    FileStatus `json:"status"`
	ErrorMsg  string     `json:"error_msg,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// TrackingStore 文件状态持久化接口。Get 对不存在的记录返回 (nil, nil)。
// Create 幂等：已存在时不覆盖，返回是否真正插入。
type TrackingStore interface {
	Get(ctx context.Context, filename string) (*FileRecord, error)
	Create(ctx context.Context, filename string) (bool, error)
	UpdateStatus(ctx context.Context, filename string, status FileStatus, errorMsg string) error
	ResetToPending(ctx context.Context, filename string) error
	Delete(ctx context.Context, filename string) error
	List(ctx context.Context) ([]FileRecord, error)
}

// TruncateErrorMsg 截断错误信息到持久化上限
func TruncateErrorMsg(msg string) string {
	runes := []rune(msg)
	if len(runes) <= MaxErrorMsgLen {
		return msg
	}
	return string(runes[:MaxErrorMsgLen])
}
