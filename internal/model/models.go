package model

import (
	"time"
)

// GuestRecord 表示仓库表中的一行宾客记录。
//
// email 是核验与更新时的标识键，但表不强制唯一：同一宾客在不同
// 活动日期各占一行，重复上传也可能产生同一 (email, date) 的多行。
// 行只追加不删除，唯一会被改写的字段是 attendance。
type GuestRecord struct {
	ID        uint      `gorm:"primaryKey" json:"-"` // 行内部标识
	CreatedAt time.Time `json:"-"`                   // 入库时间
	UpdatedAt time.Time `json:"-"`

	Name       string `gorm:"type:varchar(255)" json:"name"`                 // 宾客姓名（可空，自由格式）
	Email      string `gorm:"type:varchar(191);index;not null" json:"email"` // 标识键，非空
	Date       string `gorm:"type:varchar(10);index;not null" json:"date"`   // 活动日期 YYYY-MM-DD（按字符串比较/分组）
	Status     string `gorm:"type:varchar(255)" json:"status"`               // 上传侧元数据，自由格式
	Attendance string `gorm:"type:varchar(32)" json:"attendance"`            // "" 表示未签到；非空（约定 "True"）表示已签到
}

// EventStat 表示一个活动日期的汇总统计。
type EventStat struct {
	Date        string `gorm:"column:date" json:"date"`
	TotalGuests int64  `gorm:"column:total_guests" json:"total_guests"`
	CheckedIn   int64  `gorm:"column:checked_in" json:"checked_in"`
}
