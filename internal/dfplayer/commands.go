package dfplayer

import "time"

// DFPlayer Mini 命令码
const (
	CmdNext            = 0x01 // 播放下一曲
	CmdPrev            = 0x02 // 播放上一曲
	CmdVolumeInc       = 0x04 // 音量加一级
	CmdVolumeDec       = 0x05 // 音量减一级
	CmdSetVolume       = 0x06 // 设置音量（0-30）
	CmdSetEqualizer    = 0x07 // 设置均衡器模式
	CmdSetPlaybackMode = 0x08 // 设置循环播放模式
	CmdSetSource       = 0x09 // 选择播放源
	CmdStandbyEnter    = 0x0A // 进入低功耗待机
	CmdStandbyExit     = 0x0B // 退出待机回到正常模式
	CmdReset           = 0x0C // 复位模块
	CmdPlay            = 0x0D // 播放当前选中文件
	CmdPause           = 0x0E // 暂停播放
	CmdPlayFolderFile  = 0x0F // 播放指定文件夹下指定曲目
	CmdPlayFromMP3     = 0x12 // 播放 "MP3" 文件夹中的指定曲目（1-9999）
	CmdPlayAdvert      = 0x13 // 插播 "ADVERT" 文件夹曲目，完毕后恢复原播放
	CmdAbortAdvert     = 0x15 // 中止插播并恢复原播放
	CmdRepeatFolder    = 0x17 // 循环播放指定文件夹（1-99）
	CmdRandom          = 0x18 // 全部文件随机播放
	CmdRepeat          = 0x19 // 0=单曲循环当前文件，1=停止循环
)

// 查询类命令码（成功应答回显命令码本身，data 携带查询值）
const (
	CmdGetStatus    = 0x42 // 查询播放状态
	CmdGetVolume    = 0x43 // 查询当前音量
	CmdGetEqualizer = 0x44 // 查询均衡器模式
	CmdGetMode      = 0x45 // 查询循环播放模式
	CmdGetVersion   = 0x46 // 查询软件版本
	CmdFilesUSB     = 0x47 // 查询 USB 存储文件总数
	CmdFilesSDCard  = 0x48 // 查询 SD 卡文件总数
	CmdFilesFlash   = 0x49 // 查询 NOR flash 文件总数
	CmdFileNoUSB    = 0x4B // 查询 USB 当前选中文件号
	CmdFileNoSDCard = 0x4C // 查询 SD 卡当前选中文件号
	CmdFileNoFlash  = 0x4D // 查询 NOR flash 当前选中文件号

	// lowestQueryCmd 查询类命令的最小命令码
	lowestQueryCmd = 0x40
)

// 协议参数上限
const (
	MaxVolumeLevel = 30   // 设备音量级上限
	MaxFolder      = 99   // 文件夹号上限
	MaxMP3File     = 9999 // "MP3" 文件夹内曲目号上限
	MaxAdvertFile  = 9999 // "ADVERT" 文件夹内曲目号上限
)

// 命令发出后到尝试读应答之间的静置时间。
// 均为实测的硬件时序要求而非协议规定；以查表作为唯一时序来源。
const (
	settleDefault = 100 * time.Millisecond  // 普通命令
	settleMedia   = 200 * time.Millisecond  // 切源/设音量需要更长处理时间
	settleBoot    = 3000 * time.Millisecond // 复位后的启动时间（1.5-3s）
	settleCount   = 500 * time.Millisecond  // 文件计数查询
)

// settleTable 命令 -> 静置时长；未列出的命令用 settleDefault
var settleTable = map[byte]time.Duration{
	CmdSetSource:   settleMedia,
	CmdSetVolume:   settleMedia,
	CmdReset:       settleBoot,
	CmdFilesUSB:    settleCount,
	CmdFilesSDCard: settleCount,
	CmdFilesFlash:  settleCount,
	0x4E:           settleCount, // 文件夹内文件计数查询
}

// SettleDelay 返回命令对应的静置时长
func SettleDelay(cmd byte) time.Duration {
	if d, ok := settleTable[cmd]; ok {
		return d
	}
	return settleDefault
}

// isQuery 判断是否为查询类命令
func isQuery(cmd byte) bool {
	return cmd >= lowestQueryCmd
}
