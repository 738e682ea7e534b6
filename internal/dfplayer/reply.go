package dfplayer

import "fmt"

// 上行消息按命令码高半字节分类
const (
	classMask     = 0xF0
	classNotify   = 0x30 // 与任何命令无关的异步事件通知
	classResponse = 0x40 // 对最近一条命令的直接应答
)

// 应答码
const (
	ReplyError = 0x40 // 命令处理出错，data 为具体错误码
	ReplyOK    = 0x41 // 命令执行成功
)

// 通知码
const (
	NotifyInsert     = 0x3A // 插入 USB 存储或 SD 卡
	NotifyEject      = 0x3B // 拔出 USB 存储或 SD 卡
	NotifyDoneUSB    = 0x3C // USB 存储上指定曲目播放完毕
	NotifyDoneSDCard = 0x3D // SD 卡上指定曲目播放完毕
	NotifyDoneFlash  = 0x3E // NOR flash 上指定曲目播放完毕
	NotifyReady      = 0x3F // 模块就绪，data 为在线播放源位图
)

// 就绪通知中的播放源位图
const (
	MaskUSB    = 0x01 // USB 存储在线
	MaskSDCard = 0x02 // SD 卡在线
	MaskPC     = 0x04 // PC 调试口
	MaskFlash  = 0x08 // NOR flash 在线
)

// Reply 从上行帧中提取的 (应答码, 数据) 对
type Reply struct {
	Code byte
	Data uint16
}

// IsNotification 是否为异步事件通知（0x3_）
func (r *Reply) IsNotification() bool {
	return r.Code&classMask == classNotify
}

// IsResponse 是否为命令应答（0x4_）
func (r *Reply) IsResponse() bool {
	return r.Code&classMask == classResponse
}

// interpret 按等待中的命令解释一条应答：
//   - 0x41 成功，返回 data（控制类命令忽略该值）；
//   - 0x40 设备错误，按 data 映射为具名错误；
//   - 查询类命令的成功应答回显命令码，data 为查询值；
//   - 其余（含插入到应答位置的通知码）一律视为协议违例，不静默吞掉。
func interpret(cmd byte, r *Reply) (uint16, error) {
	switch {
	case r.Code == ReplyOK:
		return r.Data, nil
	case r.Code == ReplyError:
		return 0, deviceError(r.Data)
	case isQuery(cmd) && r.Code == cmd:
		return r.Data, nil
	default:
		return 0, fmt.Errorf("%w: 0x%02X (data 0x%04X) awaiting cmd 0x%02X", ErrUnexpectedCode, r.Code, r.Data, cmd)
	}
}

// Status 播放状态
type Status uint8

const (
	StatusStopped Status = 0x00
	StatusPlaying Status = 0x01
	StatusPaused  Status = 0x02
	// StatusUnknown 设备返回了未定义的状态值
	StatusUnknown Status = 0xFF
)

func (s Status) String() string {
	switch s {
	case StatusStopped:
		return "stopped"
	case StatusPlaying:
		return "playing"
	case StatusPaused:
		return "paused"
	default:
		return "unknown"
	}
}

// statusFromData 将查询应答的 data 映射为状态枚举，未定义值显式落到 StatusUnknown
func statusFromData(data uint16) Status {
	switch data {
	case 0x00:
		return StatusStopped
	case 0x01:
		return StatusPlaying
	case 0x02:
		return StatusPaused
	default:
		return StatusUnknown
	}
}

// Equalizer 均衡器模式
type Equalizer uint8

const (
	EqNormal  Equalizer = 0
	EqPop     Equalizer = 1
	EqRock    Equalizer = 2
	EqJazz    Equalizer = 3
	EqClassic Equalizer = 4
	EqBass    Equalizer = 5
)

func (e Equalizer) String() string {
	switch e {
	case EqNormal:
		return "normal"
	case EqPop:
		return "pop"
	case EqRock:
		return "rock"
	case EqJazz:
		return "jazz"
	case EqClassic:
		return "classic"
	case EqBass:
		return "bass"
	default:
		return fmt.Sprintf("equalizer(%d)", uint8(e))
	}
}

// PlaybackMode 循环播放模式
type PlaybackMode uint8

const (
	ModeRepeat       PlaybackMode = 0
	ModeFolderRepeat PlaybackMode = 1
	ModeSingleRepeat PlaybackMode = 2
	ModeRandom       PlaybackMode = 3
)

func (m PlaybackMode) String() string {
	switch m {
	case ModeRepeat:
		return "repeat"
	case ModeFolderRepeat:
		return "folder_repeat"
	case ModeSingleRepeat:
		return "single_repeat"
	case ModeRandom:
		return "random"
	default:
		return fmt.Sprintf("mode(%d)", uint8(m))
	}
}

// Source 播放源
type Source uint8

const (
	SourceUSB    Source = 0
	SourceSDCard Source = 1
	SourceAUX    Source = 2
	SourceSleep  Source = 3
	SourceFlash  Source = 4
)

func (s Source) String() string {
	switch s {
	case SourceUSB:
		return "usb"
	case SourceSDCard:
		return "sdcard"
	case SourceAUX:
		return "aux"
	case SourceSleep:
		return "sleep"
	case SourceFlash:
		return "flash"
	default:
		return fmt.Sprintf("source(%d)", uint8(s))
	}
}

// Media 插拔通知中的存储介质标识
type Media uint8

const (
	MediaUSB    Media = 0x01
	MediaSDCard Media = 0x02
	// MediaFlash 仅出现在播放完毕通知中，插拔通知不会携带
	MediaFlash Media = 0x08
)

func (m Media) String() string {
	switch m {
	case MediaUSB:
		return "usb"
	case MediaSDCard:
		return "sdcard"
	case MediaFlash:
		return "flash"
	default:
		return fmt.Sprintf("media(%d)", uint8(m))
	}
}

// NotificationKind 通知类别
type NotificationKind string

const (
	NotificationInserted  NotificationKind = "media_inserted"
	NotificationEjected   NotificationKind = "media_ejected"
	NotificationTrackDone NotificationKind = "track_done"
	NotificationReady     NotificationKind = "ready"
)

// Notification 解码后的异步事件通知
type Notification struct {
	Kind  NotificationKind
	Media Media  // 插拔/播放完毕涉及的介质
	Track uint16 // 播放完毕的曲目号
	// Sources 就绪通知中的在线播放源位图（MaskUSB 等按位组合）
	Sources uint16
}

// DecodeNotification 将通知类 Reply 解码为结构化事件；
// 非通知类或未知通知码返回 (nil, false)。
func DecodeNotification(r *Reply) (*Notification, bool) {
	switch r.Code {
	case NotifyInsert:
		return &Notification{Kind: NotificationInserted, Media: Media(r.Data)}, true
	case NotifyEject:
		return &Notification{Kind: NotificationEjected, Media: Media(r.Data)}, true
	case NotifyDoneUSB:
		return &Notification{Kind: NotificationTrackDone, Media: MediaUSB, Track: r.Data}, true
	case NotifyDoneSDCard:
		return &Notification{Kind: NotificationTrackDone, Media: MediaSDCard, Track: r.Data}, true
	case NotifyDoneFlash:
		return &Notification{Kind: NotificationTrackDone, Media: MediaFlash, Track: r.Data}, true
	case NotifyReady:
		return &Notification{Kind: NotificationReady, Sources: r.Data}, true
	default:
		return nil, false
	}
}
