package dfplayer

import (
	"errors"
	"fmt"
)

// 协议/传输层错误
var (
	// ErrNoData 读窗口内无任何字节（设备尚未应答）
	ErrNoData = errors.New("no data available")
	// ErrMalformedFrame 帧长度或固定字段不合法
	ErrMalformedFrame = errors.New("malformed frame")
	// ErrBadReplyChecksum 上行帧校验和不匹配
	ErrBadReplyChecksum = errors.New("reply checksum mismatch")
	// ErrUnexpectedCode 应答码既非已知响应也非所等待的查询码
	ErrUnexpectedCode = errors.New("unexpected reply code")
	// ErrTimeout 重试次数耗尽仍未收到应答
	ErrTimeout = errors.New("device response timeout")
	// ErrCommandTooLarge 命令码超出单字节范围（防御性检查）
	ErrCommandTooLarge = errors.New("command exceeds one byte")
)

// 设备上报错误（0x40 应答，data 区分具体原因）
var (
	// ErrBusy 设备忙（0x00）
	ErrBusy = errors.New("device busy")
	// ErrIncompleteFrame 设备收到不完整帧（0x01）
	ErrIncompleteFrame = errors.New("device received incomplete frame")
	// ErrChecksumMismatch 设备收到校验和错误的帧（0x02）
	ErrChecksumMismatch = errors.New("device reported frame checksum mismatch")
	// ErrNoSuchFile 目标文件/文件夹不存在（0x06）
	ErrNoSuchFile = errors.New("no such file or folder")
)

// DeviceError 设备上报的未知错误码，保留原始 data 供诊断
type DeviceError struct {
	Code uint16
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("unknown device error 0x%04X", e.Code)
}

// deviceError 将 0x40 应答的 data 映射为具名错误
func deviceError(data uint16) error {
	switch data {
	case 0x00:
		return ErrBusy
	case 0x01:
		return ErrIncompleteFrame
	case 0x02:
		return ErrChecksumMismatch
	case 0x06:
		return ErrNoSuchFile
	default:
		return &DeviceError{Code: data}
	}
}

// ValidationError 调用方参数超出协议允许范围，编码前即被拒绝，不产生任何 I/O
type ValidationError struct {
	Field string
	Value int
	Min   int
	Max   int
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %d out of range [%d, %d]", e.Field, e.Value, e.Min, e.Max)
}

// validateRange 范围校验辅助
func validateRange(field string, value, min, max int) error {
	if value < min || value > max {
		return &ValidationError{Field: field, Value: value, Min: min, Max: max}
	}
	return nil
}
