package warehouse

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/sundaiclub/verifAI/internal/model"
)

var (
	// ErrUpload 批量追加失败（传输或 schema 不匹配）。
	ErrUpload = errors.New("warehouse upload failed")
	// ErrQuery 查询失败（谓词非法或传输失败）。
	ErrQuery = errors.New("warehouse query failed")
	// ErrUpdate 条件更新失败。匹配 0 行不是错误。
	ErrUpdate = errors.New("warehouse update failed")
)

const defaultTable = "guest_records"

// identifyingColumns 是允许出现在查询/更新谓词里的标识列白名单。
// 谓词一律走参数绑定，列名只能从这里取，调用方的字符串不会被
// 拼进 SQL。
var identifyingColumns = map[string]string{
	"email": "email",
	"name":  "name",
}

// Config 是网关的显式配置，由进程启动时一次性传入。
type Config struct {
	DSN   string // 仓库连接串
	Table string // 宾客表名，空值用 guest_records
}

// Gateway 是唯一与仓库引擎对话的组件。
//
// 它只暴露四类操作：批量追加、存在性查询、按谓词改 attendance、
// 分日期聚合。并发控制完全交给仓库自身的事务语义。
type Gateway struct {
	db    *gorm.DB
	table string
}

// New 连接仓库并确保宾客表存在。
func New(cfg Config) (*Gateway, error) {
	db, err := gorm.Open(mysql.Open(cfg.DSN), &gorm.Config{
		Logger: gormLogger.Default.LogMode(gormLogger.Silent), // 关闭GORM调试日志
	})
	if err != nil {
		return nil, fmt.Errorf("open warehouse: %w", err)
	}
	return NewWithDB(db, cfg.Table)
}

// NewWithDB 从已有连接构造网关，供测试与组合使用。
func NewWithDB(db *gorm.DB, table string) (*Gateway, error) {
	if db == nil {
		return nil, errors.New("warehouse db is nil")
	}
	if table == "" {
		table = defaultTable
	}
	if err := db.Table(table).AutoMigrate(&model.GuestRecord{}); err != nil {
		return nil, fmt.Errorf("migrate guest table: %w", err)
	}
	return &Gateway{db: db, table: table}, nil
}

// Insert 以单个事务把整批行追加到宾客表：要么全部成功，要么整批失败。
func (g *Gateway) Insert(ctx context.Context, rows []model.GuestRecord) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	var inserted int64
	err := g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Table(g.table).CreateInBatches(&rows, 500)
		if res.Error != nil {
			return res.Error
		}
		inserted = res.RowsAffected
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUpload, err)
	}
	return inserted, nil
}

// Exists 判断 (field=value, date) 是否至少匹配一行。
func (g *Gateway) Exists(ctx context.Context, field, value, date string) (bool, error) {
	col, ok := identifyingColumns[field]
	if !ok {
		return false, fmt.Errorf("%w: field must be 'email' or 'name', got %q", ErrQuery, field)
	}

	var count int64
	if err := g.db.WithContext(ctx).Table(g.table).
		Where(col+" = ? AND date = ?", value, date).
		Count(&count).Error; err != nil {
		return false, fmt.Errorf("%w: %v", ErrQuery, err)
	}
	return count > 0, nil
}

// UpdateAttendance 改写匹配 (field=value, date) 的行的 attendance。
//
// 返回受影响行数；0 行是正常结果，重复行存在时可能大于 1，
// 两种情况都如实上报。
func (g *Gateway) UpdateAttendance(ctx context.Context, field, value, date, attendance string) (int64, error) {
	col, ok := identifyingColumns[field]
	if !ok {
		return 0, fmt.Errorf("%w: field must be 'email' or 'name', got %q", ErrUpdate, field)
	}

	res := g.db.WithContext(ctx).Table(g.table).
		Where(col+" = ? AND date = ?", value, date).
		Update("attendance", attendance)
	if res.Error != nil {
		return 0, fmt.Errorf("%w: %v", ErrUpdate, res.Error)
	}
	return res.RowsAffected, nil
}

// Events 按活动日期分组统计总人数与已签到人数，日期降序。
func (g *Gateway) Events(ctx context.Context) ([]model.EventStat, error) {
	stats := []model.EventStat{}
	if err := g.db.WithContext(ctx).Table(g.table).
		Select("date, COUNT(*) AS total_guests, SUM(CASE WHEN attendance <> '' THEN 1 ELSE 0 END) AS checked_in").
		Group("date").
		Order("date DESC").
		Scan(&stats).Error; err != nil {
		return nil, fmt.Errorf("%w: %v", ErrQuery, err)
	}
	return stats, nil
}

// StatsForDate 返回单个活动日期的统计；该日期没有任何行时计数为 0。
func (g *Gateway) StatsForDate(ctx context.Context, date string) (model.EventStat, error) {
	stat := model.EventStat{Date: date}
	if err := g.db.WithContext(ctx).Table(g.table).
		Select("COUNT(*) AS total_guests, COALESCE(SUM(CASE WHEN attendance <> '' THEN 1 ELSE 0 END), 0) AS checked_in").
		Where("date = ?", date).
		Scan(&stat).Error; err != nil {
		return model.EventStat{}, fmt.Errorf("%w: %v", ErrQuery, err)
	}
	stat.Date = date
	return stat, nil
}

// Columns 返回宾客表当前的字段名，按表内顺序。
func (g *Gateway) Columns(ctx context.Context) ([]string, error) {
	cols := []string{}
	if err := g.db.WithContext(ctx).Raw(
		"SELECT column_name FROM information_schema.columns WHERE table_schema = DATABASE() AND table_name = ? ORDER BY ordinal_position",
		g.table,
	).Scan(&cols).Error; err != nil {
		return nil, fmt.Errorf("%w: %v", ErrQuery, err)
	}
	return cols, nil
}

// Ping 做一次最小查询确认仓库可达。
func (g *Gateway) Ping(ctx context.Context) error {
	var one int
	if err := g.db.WithContext(ctx).Raw("SELECT 1").Scan(&one).Error; err != nil {
		return fmt.Errorf("%w: %v", ErrQuery, err)
	}
	return nil
}

// Close 释放底层连接。
func (g *Gateway) Close() error {
	sqlDB, err := g.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
