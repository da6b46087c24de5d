// Package apperr 定义了流水线各层共享的错误分类。
// 每个失败都带有一个 Kind，HTTP 层据此映射状态码，调用方据此区分失败原因。
package apperr

import (
	"errors"
	"fmt"
)

// Kind 是错误的分类。
type Kind int

const (
	// Unknown 表示未分类的错误，通常来自未包装的底层错误。
	Unknown Kind = iota
	// InvalidArgument 表示在任何 I/O 之前就发现的参数缺失或非法。
	InvalidArgument
	// NotFound 表示引用的归档、任务或目录不存在。
	NotFound
	// Conflict 表示同一个 key 上仍有未结束的下载任务。
	Conflict
	// Corrupted 表示数据库与文件系统不一致，或归档内容无法读取。
	Corrupted
	// IOFailure 表示操作过程中的磁盘或网络错误。
	IOFailure
	// PersistenceFailure 表示处理成功后存储层拒绝写入。
	PersistenceFailure
	// Unavailable 表示依赖的可选组件未启用。
	Unavailable
)

// String 返回 Kind 的稳定名称，会出现在 API 响应中。
func (k Kind) String() string {
	switch k {
	case InvalidArgument:
		return "invalid_argument"
	case NotFound:
		return "not_found"
	case Conflict:
		return "conflict"
	case Corrupted:
		return "corrupted"
	case IOFailure:
		return "io_failure"
	case PersistenceFailure:
		return "persistence_failure"
	case Unavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// Error 是携带分类信息的错误。
type Error struct {
	Kind Kind
	Op   string // 出错的操作，如 "assemble.extracting"
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	} else if e.Err != nil {
		msg = msg + ": " + e.Err.Error()
	}
	if e.Op == "" {
		return msg
	}
	return e.Op + ": " + msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is 让 errors.Is(err, &Error{Kind: k}) 按分类匹配。
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Op == "" && t.Msg == "" && t.Err == nil
}

// New 创建一个不包装其他错误的分类错误。
func New(kind Kind, op, format string, args ...interface{}) error {
	return &Error{Kind: kind, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// Wrap 为 err 附加分类。err 为 nil 时返回 nil。
func Wrap(kind Kind, op string, err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Msg: fmt.Sprintf(format, args...), Err: err}
}

// KindOf 返回错误链上第一个分类错误的 Kind。
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Unknown
}

// IsKind 判断 err 是否属于指定分类。
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
