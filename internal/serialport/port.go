package serialport

import (
	"fmt"
	"time"

	"go.bug.st/serial"

	cfgpkg "github.com/taoyao-code/dfplayer-server/internal/config"
)

// DFPlayer Mini 固定链路参数：9600 波特，8 数据位，无校验，1 停止位
const (
	defaultBaud = 9600
	// pollTimeout 单次底层读的超时，保证 Available 是非阻塞轮询语义
	pollTimeout = 20 * time.Millisecond
)

// Port 基于 go.bug.st/serial 的串口适配器，实现 dfplayer.Transport。
// 底层串口读带短超时，读到的字节缓存在 pending 中，
// Available/Read 构成非阻塞轮询式读取。
type Port struct {
	port    serial.Port
	pending []byte
}

// Open 打开并配置串口。链路参数在此一次性配置完毕，调用方不再关心。
func Open(cfg cfgpkg.SerialConfig) (*Port, error) {
	baud := cfg.Baud
	if baud == 0 {
		baud = defaultBaud
	}
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	sp, err := serial.Open(cfg.Device, mode)
	if err != nil {
		return nil, fmt.Errorf("open serial %s: %w", cfg.Device, err)
	}
	if err := sp.SetReadTimeout(pollTimeout); err != nil {
		_ = sp.Close()
		return nil, fmt.Errorf("set read timeout: %w", err)
	}
	// 丢弃串口打开前残留的字节，避免解析到陈旧帧
	_ = sp.ResetInputBuffer()
	return &Port{port: sp}, nil
}

// Write 写出一帧，保证全部字节落盘
func (p *Port) Write(b []byte) error {
	for len(b) > 0 {
		n, err := p.port.Write(b)
		if err != nil {
			return fmt.Errorf("serial write: %w", err)
		}
		b = b[n:]
	}
	return nil
}

// Available 返回当前可读字节数。
// 先尝试一次带短超时的底层读并入缓存，再报告缓存长度。
func (p *Port) Available() (int, error) {
	if len(p.pending) > 0 {
		return len(p.pending), nil
	}
	buf := make([]byte, 64)
	n, err := p.port.Read(buf)
	if err != nil {
		return 0, fmt.Errorf("serial read: %w", err)
	}
	p.pending = append(p.pending, buf[:n]...)
	return len(p.pending), nil
}

// Read 先从缓存取，不足再向底层补读一次
func (p *Port) Read(dst []byte) (int, error) {
	n := copy(dst, p.pending)
	p.pending = p.pending[n:]
	if n == len(dst) {
		return n, nil
	}
	m, err := p.port.Read(dst[n:])
	if err != nil {
		return n, fmt.Errorf("serial read: %w", err)
	}
	return n + m, nil
}

// ReadPinLevel 读取指定调制解调器输入脚的电平。
// 模块忙脚通常接到 CTS 或 DSR 上，由 WatchPin 轮询形成边沿回调。
func (p *Port) ReadPinLevel(pin string) (bool, error) {
	bits, err := p.port.GetModemStatusBits()
	if err != nil {
		return false, fmt.Errorf("modem status: %w", err)
	}
	switch pin {
	case "cts":
		return bits.CTS, nil
	case "dsr":
		return bits.DSR, nil
	case "ri":
		return bits.RI, nil
	case "dcd":
		return bits.DCD, nil
	default:
		return false, fmt.Errorf("unknown busy pin %q", pin)
	}
}

// Close 关闭串口
func (p *Port) Close() error {
	return p.port.Close()
}
