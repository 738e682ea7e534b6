package dfplayer

import (
	"encoding/binary"
	"fmt"
)

// DFPlayer 串口协议帧格式常量
// 帧布局（固定10字节）：
// start(1) 0x7E | version(1) 0xFF | len(1) 0x06 | cmd(1) | ack(1) | dataHi(1) | dataLo(1) | csHi(1) | csLo(1) | end(1) 0xEF
const (
	// FrameSize 帧总长度，上下行一致
	FrameSize = 10

	// 固定字段
	ByteStart   = 0x7E // 帧起始符
	ByteVersion = 0xFF // 版本字段，恒为 0xFF
	ByteLength  = 0x06 // 命令区长度（version..dataLo 共6字节）
	ByteEnd     = 0xEF // 帧结束符

	// ACK 标志
	AckRequest = 0x01 // 要求设备回 ACK（本驱动下行恒用此值）
	AckNone    = 0x00 // 不要求 ACK（协议定义存在，驱动不使用）
)

// Checksum 计算帧校验和：对 version+len+cmd+ack+dataHi+dataLo 求和后取
// 16位补码取负（模 2^16 回绕），大端序写入帧尾前两字节。
func Checksum(cmd, ack byte, data uint16) uint16 {
	sum := uint16(ByteVersion) + uint16(ByteLength) +
		uint16(cmd) + uint16(ack) + uint16(data>>8) + uint16(data&0xFF)
	return -sum
}

// Encode 将 (命令, 16位数据) 编码为一帧下行数据。
// 纯函数，无副作用；下行帧恒带 AckRequest 标志。
func Encode(cmd byte, data uint16) []byte {
	cs := Checksum(cmd, AckRequest, data)
	frame := make([]byte, FrameSize)
	frame[0] = ByteStart
	frame[1] = ByteVersion
	frame[2] = ByteLength
	frame[3] = cmd
	frame[4] = AckRequest
	binary.BigEndian.PutUint16(frame[5:7], data)
	binary.BigEndian.PutUint16(frame[7:9], cs)
	frame[9] = ByteEnd
	return frame
}

// EncodeRaw 是 Encode 的防御性入口：命令以 int 传入时校验单字节范围。
// 类型系统已保证 byte 入参合法，此入口仅服务于直接透传原始命令码的调用方。
func EncodeRaw(cmd int, data uint16) ([]byte, error) {
	if cmd < 0 || cmd > 0xFF {
		return nil, fmt.Errorf("%w: 0x%X", ErrCommandTooLarge, cmd)
	}
	return Encode(byte(cmd), data), nil
}

// Parse 解析一帧上行数据。
//   - 空输入返回 ErrNoData（读窗口内设备尚未应答，区别于坏帧）；
//   - 长度不为10或四个固定字段不匹配返回 ErrMalformedFrame；
//   - 校验和不匹配返回 ErrBadReplyChecksum（协议层错误，区别于设备上报的 FCS 错误）。
func Parse(raw []byte) (*Reply, error) {
	if len(raw) == 0 {
		return nil, ErrNoData
	}
	if len(raw) != FrameSize {
		return nil, fmt.Errorf("%w: length %d", ErrMalformedFrame, len(raw))
	}
	if raw[0] != ByteStart || raw[1] != ByteVersion || raw[2] != ByteLength || raw[9] != ByteEnd {
		return nil, fmt.Errorf("%w: bad constant fields % X", ErrMalformedFrame, raw)
	}

	cmd := raw[3]
	ack := raw[4]
	data := binary.BigEndian.Uint16(raw[5:7])

	// 原参考实现不校验上行校验和，此处补齐（见 DESIGN.md）
	got := binary.BigEndian.Uint16(raw[7:9])
	if want := Checksum(cmd, ack, data); got != want {
		return nil, fmt.Errorf("%w: got 0x%04X want 0x%04X", ErrBadReplyChecksum, got, want)
	}

	return &Reply{Code: cmd, Data: data}, nil
}
