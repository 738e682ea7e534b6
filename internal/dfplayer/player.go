package dfplayer

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// 应答重试参数
const (
	// readTimeout 单次等待应答的窗口
	readTimeout = 100 * time.Millisecond
	// DefaultRetries 读窗口内无数据时的默认重试次数
	DefaultRetries = 5
)

// Transport 串口字节流适配器。
// 非阻塞轮询式读取：Available 返回可读字节数，Read 至多读取 len(p) 字节。
// 波特率等链路参数（9600 8N1）由适配器在构造时配置完毕。
type Transport interface {
	Write(p []byte) error
	Available() (int, error)
	Read(p []byte) (int, error)
}

// Player DFPlayer Mini 驱动。
// 命令严格串行：协议为单通道请求/应答且无消息ID，不允许两条命令同时在途，
// 以互斥锁保证。忙脚跟踪器与命令回路并发运行，只通过一个原子布尔量交互。
type Player struct {
	mu      sync.Mutex
	tr      Transport
	busy    *BusyTracker
	retries int
	onRetry func()              // 每次进入重试前回调（指标用），可为 nil
	sleep   func(time.Duration) // 可注入，测试中替换掉真实延时
}

// Option Player 构造选项
type Option func(*Player)

// WithRetries 覆盖超时重试次数
func WithRetries(n int) Option {
	return func(p *Player) {
		if n >= 0 {
			p.retries = n
		}
	}
}

// WithBusyTracker 挂接忙脚跟踪器，Playing() 将优先读取忙脚电平
func WithBusyTracker(t *BusyTracker) Option {
	return func(p *Player) { p.busy = t }
}

// WithRetryHook 每次进入应答重试前回调一次（指标计数用）
func WithRetryHook(fn func()) Option {
	return func(p *Player) { p.onRetry = fn }
}

// withSleep 替换延时原语（仅测试使用）
func withSleep(fn func(time.Duration)) Option {
	return func(p *Player) { p.sleep = fn }
}

// New 创建驱动实例
func New(tr Transport, opts ...Option) *Player {
	p := &Player{tr: tr, retries: DefaultRetries, sleep: time.Sleep}
	for _, o := range opts {
		o(p)
	}
	return p
}

// readFrame 尝试读取一帧：无数据返回 ErrNoData，有数据但凑不满一帧按坏帧处理
func (p *Player) readFrame() (*Reply, error) {
	n, err := p.tr.Available()
	if err != nil {
		return nil, fmt.Errorf("transport available: %w", err)
	}
	if n == 0 {
		return nil, ErrNoData
	}
	buf := make([]byte, FrameSize)
	rn, err := p.tr.Read(buf)
	if err != nil {
		return nil, fmt.Errorf("transport read: %w", err)
	}
	return Parse(buf[:rn])
}

// roundTrip 发送一帧并等待应答：写出 → 按命令查表静置 → 轮询读取。
// 读窗口内无数据时重试（每次重试前再等一个读窗口），预算耗尽返回 ErrTimeout。
// 一旦写出即承诺等完静置窗口，无取消语义。
func (p *Player) roundTrip(cmd byte, data uint16) (*Reply, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.tr.Write(Encode(cmd, data)); err != nil {
		return nil, fmt.Errorf("transport write: %w", err)
	}
	p.sleep(SettleDelay(cmd))

	for attempt := 0; ; attempt++ {
		reply, err := p.readFrame()
		if err == nil {
			return reply, nil
		}
		if !errors.Is(err, ErrNoData) {
			return nil, err
		}
		if attempt >= p.retries {
			return nil, fmt.Errorf("%w: cmd 0x%02X after %d attempts", ErrTimeout, cmd, attempt+1)
		}
		if p.onRetry != nil {
			p.onRetry()
		}
		p.sleep(readTimeout)
	}
}

// command 发送控制类/查询类命令并解释应答
func (p *Player) command(cmd byte, data uint16) (uint16, error) {
	reply, err := p.roundTrip(cmd, data)
	if err != nil {
		return 0, err
	}
	return interpret(cmd, reply)
}

// exec 控制类命令：只关心成败
func (p *Player) exec(cmd byte, data uint16) error {
	_, err := p.command(cmd, data)
	return err
}

// query 查询类命令：返回应答携带的值
func (p *Player) query(cmd byte) (uint16, error) {
	return p.command(cmd, 0)
}

// Reset 复位模块，静置窗口为设备启动时间
func (p *Player) Reset() error { return p.exec(CmdReset, 0) }

// Next 播放下一曲
func (p *Player) Next() error { return p.exec(CmdNext, 0) }

// Previous 播放上一曲
func (p *Player) Previous() error { return p.exec(CmdPrev, 0) }

// Play 播放当前选中文件
func (p *Player) Play() error { return p.exec(CmdPlay, 0) }

// Pause 暂停播放
func (p *Player) Pause() error { return p.exec(CmdPause, 0) }

// IncreaseVolume 音量加一级
func (p *Player) IncreaseVolume() error { return p.exec(CmdVolumeInc, 0) }

// DecreaseVolume 音量减一级
func (p *Player) DecreaseVolume() error { return p.exec(CmdVolumeDec, 0) }

// SetVolumePercent 按百分比设置音量：0-100 线性映射到设备音量级 0-30（向下取整）
func (p *Player) SetVolumePercent(percent int) error {
	if err := validateRange("volume percent", percent, 0, 100); err != nil {
		return err
	}
	level := percent * MaxVolumeLevel / 100
	return p.exec(CmdSetVolume, uint16(level))
}

// SetVolumeLevel 直接设置设备音量级（0-30）
func (p *Player) SetVolumeLevel(level int) error {
	if err := validateRange("volume level", level, 0, MaxVolumeLevel); err != nil {
		return err
	}
	return p.exec(CmdSetVolume, uint16(level))
}

// SetEqualizer 设置均衡器模式（0-5）
func (p *Player) SetEqualizer(eq Equalizer) error {
	if err := validateRange("equalizer", int(eq), 0, int(EqBass)); err != nil {
		return err
	}
	return p.exec(CmdSetEqualizer, uint16(eq))
}

// SetPlaybackMode 设置循环播放模式
func (p *Player) SetPlaybackMode(mode PlaybackMode) error {
	if err := validateRange("playback mode", int(mode), 0, int(ModeRandom)); err != nil {
		return err
	}
	return p.exec(CmdSetPlaybackMode, uint16(mode))
}

// SetSource 选择播放源（0-4：USB/SD/AUX/Sleep/Flash）
func (p *Player) SetSource(src Source) error {
	if err := validateRange("playback source", int(src), 0, int(SourceFlash)); err != nil {
		return err
	}
	return p.exec(CmdSetSource, uint16(src))
}

// SetStandby 进入或退出待机
func (p *Player) SetStandby(enabled bool) error {
	if enabled {
		return p.exec(CmdStandbyEnter, 0)
	}
	return p.exec(CmdStandbyExit, 0)
}

// PlayTrack 播放指定文件夹（0-99）下的指定曲目（0-9999）。
// 线上布局：dataHi=文件夹号，dataLo=曲目号低字节。
func (p *Player) PlayTrack(folder, track int) error {
	if err := validateRange("folder", folder, 0, MaxFolder); err != nil {
		return err
	}
	if err := validateRange("track", track, 0, MaxMP3File); err != nil {
		return err
	}
	return p.exec(CmdPlayFolderFile, uint16(folder)<<8|uint16(track&0xFF))
}

// PlayFromMP3Folder 播放 "MP3" 文件夹中的指定曲目（0-9999）。
// 线上布局沿用参考实现：dataHi=曲目号低字节，dataLo=曲目号高字节。
func (p *Player) PlayFromMP3Folder(track int) error {
	if err := validateRange("track", track, 0, MaxMP3File); err != nil {
		return err
	}
	return p.exec(CmdPlayFromMP3, uint16(track&0xFF)<<8|uint16(track>>8))
}

// PlayAdvert 插播 "ADVERT" 文件夹中的指定曲目，播完恢复原曲目
func (p *Player) PlayAdvert(track int) error {
	if err := validateRange("advert track", track, 0, MaxAdvertFile); err != nil {
		return err
	}
	return p.exec(CmdPlayAdvert, uint16(track))
}

// AbortAdvert 中止插播并恢复原播放
func (p *Player) AbortAdvert() error { return p.exec(CmdAbortAdvert, 0) }

// RepeatFolder 循环播放指定文件夹（1-99）
func (p *Player) RepeatFolder(folder int) error {
	if err := validateRange("folder", folder, 1, MaxFolder); err != nil {
		return err
	}
	return p.exec(CmdRepeatFolder, uint16(folder))
}

// PlayRandom 全部文件随机播放
func (p *Player) PlayRandom() error { return p.exec(CmdRandom, 0) }

// SetRepeat 单曲循环当前文件（true 开启）
func (p *Player) SetRepeat(enabled bool) error {
	if enabled {
		return p.exec(CmdRepeat, 0)
	}
	return p.exec(CmdRepeat, 1)
}

// Status 查询播放状态
func (p *Player) Status() (Status, error) {
	data, err := p.query(CmdGetStatus)
	if err != nil {
		return StatusUnknown, err
	}
	return statusFromData(data), nil
}

// Volume 查询当前音量级（0-30）
func (p *Player) Volume() (int, error) {
	data, err := p.query(CmdGetVolume)
	return int(data), err
}

// Equalizer 查询当前均衡器模式
func (p *Player) Equalizer() (Equalizer, error) {
	data, err := p.query(CmdGetEqualizer)
	return Equalizer(data), err
}

// PlaybackMode 查询当前循环播放模式
func (p *Player) PlaybackMode() (PlaybackMode, error) {
	data, err := p.query(CmdGetMode)
	return PlaybackMode(data), err
}

// Version 查询软件版本号
func (p *Player) Version() (uint16, error) {
	return p.query(CmdGetVersion)
}

// FileCount 查询指定介质上的文件总数
func (p *Player) FileCount(media Media) (int, error) {
	data, err := p.query(fileCountCmd(media))
	return int(data), err
}

// CurrentFileNumber 查询指定介质上当前选中的文件号
func (p *Player) CurrentFileNumber(media Media) (int, error) {
	data, err := p.query(fileNoCmd(media))
	return int(data), err
}

func fileCountCmd(media Media) byte {
	switch media {
	case MediaUSB:
		return CmdFilesUSB
	case MediaFlash:
		return CmdFilesFlash
	default:
		return CmdFilesSDCard
	}
}

func fileNoCmd(media Media) byte {
	switch media {
	case MediaUSB:
		return CmdFileNoUSB
	case MediaFlash:
		return CmdFileNoFlash
	default:
		return CmdFileNoSDCard
	}
}

// Playing 返回是否正在播放。
// 挂接了忙脚跟踪器时直接读原子标志，无串口往返；
// 否则退化为一次完整的状态查询回路。
func (p *Player) Playing() (bool, error) {
	if p.busy != nil && p.busy.Attached() {
		return p.busy.Playing(), nil
	}
	st, err := p.Status()
	if err != nil {
		return false, err
	}
	return st == StatusPlaying, nil
}

// PollNotification 在无命令在途时轮询一条异步通知。
// 无数据返回 (nil, nil)；读到命令应答类帧（迟到的应答）按协议违例上报。
func (p *Player) PollNotification() (*Notification, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	reply, err := p.readFrame()
	if errors.Is(err, ErrNoData) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	n, ok := DecodeNotification(reply)
	if !ok {
		return nil, fmt.Errorf("%w: 0x%02X while polling notifications", ErrUnexpectedCode, reply.Code)
	}
	return n, nil
}
