package market

import "time"

// 交易时段常量（分钟数，当地交易所时间）。
const (
	sessionOpenMinute  = 9*60 + 15  // 09:15 开盘
	sessionCloseMinute = 15*60 + 30 // 15:30 收盘
	openingEndMinute   = 9*60 + 30  // 09:30 前视为开盘时段
	closingStartMinute = 15 * 60    // 15:00 后视为尾盘时段
	midStartMinute     = 10 * 60
	midEndMinute       = 14 * 60
)

// SessionFlags 描述快照时刻落在哪个盘中时段。
type SessionFlags struct {
	Opening bool
	Closing bool
	Mid     bool
}

// IsMarketHours 判断给定时刻是否处于交易时段（周一至周五 09:15–15:30）。
func IsMarketHours(t time.Time) bool {
	switch t.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	m := minuteOfDay(t)
	return m >= sessionOpenMinute && m < sessionCloseMinute
}

// Session 根据固定的时钟阈值计算时段标志：
// 09:30 前为开盘时段，15:00 起为尾盘时段，10:00–14:00 为盘中时段。
func Session(t time.Time) SessionFlags {
	m := minuteOfDay(t)
	return SessionFlags{
		Opening: m < openingEndMinute,
		Closing: m >= closingStartMinute,
		Mid:     m >= midStartMinute && m < midEndMinute,
	}
}

func minuteOfDay(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}
