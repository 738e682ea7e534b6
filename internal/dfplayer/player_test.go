package dfplayer

import (
	"bytes"
	"errors"
	"testing"
	"time"
)

// stubTransport 脚本化串口替身：记录写出的帧，按脚本逐帧返回应答。
// 脚本中的 nil 表示该次读窗口内无数据。
type stubTransport struct {
	written [][]byte
	script  [][]byte
	writeErr error
}

func (s *stubTransport) Write(p []byte) error {
	if s.writeErr != nil {
		return s.writeErr
	}
	cp := make([]byte, len(p))
	copy(cp, p)
	s.written = append(s.written, cp)
	return nil
}

func (s *stubTransport) Available() (int, error) {
	if len(s.script) == 0 {
		return 0, nil
	}
	if s.script[0] == nil {
		// 本读窗口无数据，消费脚本推进到下一窗口
		s.script = s.script[1:]
		return 0, nil
	}
	return len(s.script[0]), nil
}

func (s *stubTransport) Read(p []byte) (int, error) {
	if len(s.script) == 0 {
		return 0, nil
	}
	frame := s.script[0]
	s.script = s.script[1:]
	n := copy(p, frame)
	return n, nil
}

// newTestPlayer 构造带假延时的 Player，返回记录到的延时序列指针
func newTestPlayer(tr Transport, opts ...Option) (*Player, *[]time.Duration) {
	var slept []time.Duration
	opts = append(opts, withSleep(func(d time.Duration) { slept = append(slept, d) }))
	return New(tr, opts...), &slept
}

func TestPlayer_SetVolumePercent(t *testing.T) {
	tr := &stubTransport{script: [][]byte{replyFrame(ReplyOK, AckNone, 0)}}
	p, slept := newTestPlayer(tr)

	if err := p.SetVolumePercent(50); err != nil {
		t.Fatalf("SetVolumePercent failed: %v", err)
	}
	if len(tr.written) != 1 {
		t.Fatalf("expected 1 frame written, got %d", len(tr.written))
	}
	want := []byte{0x7E, 0xFF, 0x06, 0x06, 0x01, 0x00, 0x0F, 0xFE, 0xE5, 0xEF}
	if !bytes.Equal(tr.written[0], want) {
		t.Fatalf("frame = % X, expected % X", tr.written[0], want)
	}
	// 设音量命令使用加长静置窗口
	if len(*slept) == 0 || (*slept)[0] != settleMedia {
		t.Fatalf("expected %v settle delay, got %v", settleMedia, *slept)
	}
}

func TestPlayer_VolumeMapping(t *testing.T) {
	tests := []struct {
		percent   int
		wantLevel byte
	}{
		{0, 0},
		{50, 15},
		{100, 30},
	}
	for _, tt := range tests {
		tr := &stubTransport{script: [][]byte{replyFrame(ReplyOK, AckNone, 0)}}
		p, _ := newTestPlayer(tr)
		if err := p.SetVolumePercent(tt.percent); err != nil {
			t.Fatalf("percent %d: %v", tt.percent, err)
		}
		if got := tr.written[0][6]; got != tt.wantLevel {
			t.Errorf("percent %d: level = %d, expected %d", tt.percent, got, tt.wantLevel)
		}
	}
}

func TestPlayer_ValidationBeforeIO(t *testing.T) {
	tests := []struct {
		name string
		call func(p *Player) error
	}{
		{"音量超上限", func(p *Player) error { return p.SetVolumePercent(101) }},
		{"音量为负", func(p *Player) error { return p.SetVolumePercent(-1) }},
		{"文件夹超上限", func(p *Player) error { return p.PlayTrack(100, 1) }},
		{"曲目超上限", func(p *Player) error { return p.PlayTrack(1, 10000) }},
		{"MP3曲目超上限", func(p *Player) error { return p.PlayFromMP3Folder(10000) }},
		{"均衡器超范围", func(p *Player) error { return p.SetEqualizer(Equalizer(6)) }},
		{"播放源超范围", func(p *Player) error { return p.SetSource(Source(5)) }},
		{"循环文件夹为零", func(p *Player) error { return p.RepeatFolder(0) }},
		{"插播曲目超上限", func(p *Player) error { return p.PlayAdvert(10000) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := &stubTransport{}
			p, _ := newTestPlayer(tr)
			err := tt.call(p)
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("expected *ValidationError, got %v", err)
			}
			// 校验失败必须发生在任何 I/O 之前
			if len(tr.written) != 0 {
				t.Fatalf("frame written despite validation failure")
			}
		})
	}
}

func TestPlayer_BoundaryAccepted(t *testing.T) {
	tr := &stubTransport{script: [][]byte{replyFrame(ReplyOK, AckNone, 0)}}
	p, _ := newTestPlayer(tr)
	if err := p.PlayTrack(99, 9999); err != nil {
		t.Fatalf("folder 99 / track 9999 must be accepted: %v", err)
	}
	if tr.written[0][5] != 99 {
		t.Errorf("dataHi = %d, expected folder 99", tr.written[0][5])
	}
}

func TestPlayer_RetryThenSuccess(t *testing.T) {
	// 前两个读窗口无数据，第三次命中应答
	tr := &stubTransport{script: [][]byte{nil, nil, replyFrame(ReplyOK, AckNone, 0)}}
	p, slept := newTestPlayer(tr)

	if err := p.Play(); err != nil {
		t.Fatalf("expected success after retries: %v", err)
	}
	// 静置窗口 + 两次重试等待
	if len(*slept) != 3 {
		t.Fatalf("expected 3 sleeps (settle + 2 retries), got %v", *slept)
	}
	if (*slept)[1] != readTimeout || (*slept)[2] != readTimeout {
		t.Fatalf("retry waits must be the read window: %v", *slept)
	}
}

func TestPlayer_RetryHook(t *testing.T) {
	tr := &stubTransport{script: [][]byte{nil, nil, replyFrame(ReplyOK, AckNone, 0)}}
	retries := 0
	p, _ := newTestPlayer(tr, WithRetryHook(func() { retries++ }))

	if err := p.Play(); err != nil {
		t.Fatalf("expected success after retries: %v", err)
	}
	if retries != 2 {
		t.Fatalf("expected 2 retry callbacks, got %d", retries)
	}
}

func TestPlayer_Timeout(t *testing.T) {
	tr := &stubTransport{} // 永远无数据
	p, slept := newTestPlayer(tr, WithRetries(2))

	err := p.Play()
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
	// 静置窗口 + 2次重试等待
	if len(*slept) != 3 {
		t.Fatalf("expected 3 sleeps, got %d", len(*slept))
	}
}

func TestPlayer_DeviceErrors(t *testing.T) {
	tests := []struct {
		name string
		data uint16
		want error
	}{
		{"忙", 0x00, ErrBusy},
		{"不完整帧", 0x01, ErrIncompleteFrame},
		{"FCS错误", 0x02, ErrChecksumMismatch},
		{"文件不存在", 0x06, ErrNoSuchFile},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := &stubTransport{script: [][]byte{replyFrame(ReplyError, AckNone, tt.data)}}
			p, _ := newTestPlayer(tr)
			if err := p.Next(); !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestPlayer_QueryEqualizer(t *testing.T) {
	tr := &stubTransport{script: [][]byte{replyFrame(CmdGetEqualizer, AckNone, uint16(EqJazz))}}
	p, _ := newTestPlayer(tr)
	eq, err := p.Equalizer()
	if err != nil {
		t.Fatalf("Equalizer query failed: %v", err)
	}
	if eq != EqJazz {
		t.Fatalf("eq = %v, expected jazz", eq)
	}
}

func TestPlayer_QueryStatus(t *testing.T) {
	tr := &stubTransport{script: [][]byte{replyFrame(CmdGetStatus, AckNone, 0x0002)}}
	p, _ := newTestPlayer(tr)
	st, err := p.Status()
	if err != nil {
		t.Fatalf("Status query failed: %v", err)
	}
	if st != StatusPaused {
		t.Fatalf("status = %v, expected paused", st)
	}
}

func TestPlayer_QueryFileCountUsesLongSettle(t *testing.T) {
	tr := &stubTransport{script: [][]byte{replyFrame(CmdFilesSDCard, AckNone, 120)}}
	p, slept := newTestPlayer(tr)
	n, err := p.FileCount(MediaSDCard)
	if err != nil {
		t.Fatalf("FileCount failed: %v", err)
	}
	if n != 120 {
		t.Fatalf("count = %d, expected 120", n)
	}
	if (*slept)[0] != settleCount {
		t.Fatalf("file-count query must use %v settle, got %v", settleCount, (*slept)[0])
	}
}

func TestPlayer_ResetUsesBootSettle(t *testing.T) {
	tr := &stubTransport{script: [][]byte{replyFrame(ReplyOK, AckNone, 0)}}
	p, slept := newTestPlayer(tr)
	if err := p.Reset(); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
	if (*slept)[0] != settleBoot {
		t.Fatalf("reset must wait boot time, got %v", (*slept)[0])
	}
}

func TestPlayer_UnexpectedCode(t *testing.T) {
	// 等待命令应答时收到通知帧：按协议违例上报而非静默忽略
	tr := &stubTransport{script: [][]byte{replyFrame(NotifyDoneSDCard, AckNone, 3)}}
	p, _ := newTestPlayer(tr)
	if err := p.Play(); !errors.Is(err, ErrUnexpectedCode) {
		t.Fatalf("expected ErrUnexpectedCode, got %v", err)
	}
}

func TestPlayer_PlayingFallbackToStatusQuery(t *testing.T) {
	tr := &stubTransport{script: [][]byte{replyFrame(CmdGetStatus, AckNone, 0x0001)}}
	p, _ := newTestPlayer(tr)
	playing, err := p.Playing()
	if err != nil {
		t.Fatalf("Playing failed: %v", err)
	}
	if !playing {
		t.Fatalf("expected playing=true")
	}
	if len(tr.written) != 1 {
		t.Fatalf("fallback path must issue a status query")
	}
}

func TestPlayer_PlayingFromBusyTracker(t *testing.T) {
	tr := &stubTransport{}
	tracker := NewBusyTracker(true) // 高电平：未在播放
	p, _ := newTestPlayer(tr, WithBusyTracker(tracker))

	playing, err := p.Playing()
	if err != nil || playing {
		t.Fatalf("expected not playing, got %v err %v", playing, err)
	}
	tracker.OnEdge(false) // 低电平：播放中
	playing, err = p.Playing()
	if err != nil || !playing {
		t.Fatalf("expected playing, got %v err %v", playing, err)
	}
	// 忙脚路径不允许产生串口往返
	if len(tr.written) != 0 {
		t.Fatalf("busy-line path must not touch the transport")
	}
}

func TestPlayer_PollNotification(t *testing.T) {
	tr := &stubTransport{}
	p, _ := newTestPlayer(tr)

	// 无数据：返回 (nil, nil)
	n, err := p.PollNotification()
	if err != nil || n != nil {
		t.Fatalf("expected no notification, got %+v err %v", n, err)
	}

	tr.script = [][]byte{replyFrame(NotifyInsert, AckNone, uint16(MediaSDCard))}
	n, err = p.PollNotification()
	if err != nil {
		t.Fatalf("PollNotification failed: %v", err)
	}
	if n.Kind != NotificationInserted || n.Media != MediaSDCard {
		t.Fatalf("unexpected notification: %+v", n)
	}

	// 轮询位置读到应答帧：协议违例
	tr.script = [][]byte{replyFrame(ReplyOK, AckNone, 0)}
	if _, err := p.PollNotification(); !errors.Is(err, ErrUnexpectedCode) {
		t.Fatalf("expected ErrUnexpectedCode, got %v", err)
	}
}
