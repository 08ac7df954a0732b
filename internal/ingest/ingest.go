package ingest

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/sundaiclub/verifAI/internal/model"
	"github.com/sundaiclub/verifAI/internal/sanitize"
)

var (
	// ErrBadFormat 上传内容无法按 CSV 解析。
	ErrBadFormat = errors.New("csv payload is not parseable")
	// ErrMissingColumns 列选择之后缺少必需字段。
	ErrMissingColumns = errors.New("required columns missing")
	// ErrEmptyBatch 过滤后没有任何可入库的行。
	ErrEmptyBatch = errors.New("no rows left after filtering")
)

// requiredColumns 是仓库表的固定字段集。
// 其中 date 不要求出现在 CSV 里：行的 date 一律由请求侧的
// selected_date 决定，CSV 自带的 date 列即使被选中也会被覆盖。
var requiredColumns = []string{"name", "email", "date", "status", "attendance"}

// Inserter 是摄取器写入仓库的唯一出口。
type Inserter interface {
	Insert(ctx context.Context, rows []model.GuestRecord) (int64, error)
}

// Result 描述一次成功摄取的结果。
type Result struct {
	RowsUploaded int    // 实际入库的行数（过滤之后）
	Dropped      int    // 因 email 为空被丢弃的行数
	Message      string // 面向调用方的可读说明
}

// Ingestor 负责把上传的 CSV 变成一批可入库的宾客记录。
//
// 流程：解析 → 按所选列裁剪 → 写入 selected_date → 逐字段净化 →
// 丢弃 email 为空的行 → 整批一次性交给 Inserter（全成全败）。
type Ingestor struct {
	inserter Inserter
	logger   *slog.Logger
}

func NewIngestor(inserter Inserter, logger *slog.Logger) *Ingestor {
	return &Ingestor{
		inserter: inserter,
		logger:   logger,
	}
}

// Ingest 解析并入库一份 CSV 名单。
//
// selectedColumns 为空表示使用 CSV 的全部列。
// 返回 ErrBadFormat / ErrMissingColumns / ErrEmptyBatch，
// 或 Inserter 透传上来的仓库错误。
func (ing *Ingestor) Ingest(ctx context.Context, r io.Reader, selectedDate string, selectedColumns []string) (Result, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrBadFormat, err)
	}

	headerIdx := make(map[string]int, len(header))
	for i, col := range header {
		headerIdx[strings.TrimSpace(col)] = i
	}

	selected := make(map[string]bool)
	if len(selectedColumns) == 0 {
		for col := range headerIdx {
			selected[col] = true
		}
	} else {
		for _, col := range selectedColumns {
			col = strings.TrimSpace(col)
			if col == "" {
				continue
			}
			if _, ok := headerIdx[col]; !ok {
				return Result{}, fmt.Errorf("%w: selected column %q not in csv header", ErrMissingColumns, col)
			}
			selected[col] = true
		}
	}

	var missing []string
	for _, col := range requiredColumns {
		if col == "date" {
			// date 由 selectedDate 提供
			continue
		}
		if !selected[col] {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return Result{}, fmt.Errorf("%w: %s", ErrMissingColumns, strings.Join(missing, ", "))
	}

	records, err := reader.ReadAll()
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrBadFormat, err)
	}

	rows := make([]model.GuestRecord, 0, len(records))
	dropped := 0
	for i, rec := range records {
		cell := func(col string) string {
			idx, ok := headerIdx[col]
			if !ok || idx >= len(rec) {
				return ""
			}
			return rec[idx]
		}

		row := model.GuestRecord{
			Name:       sanitize.Clean(cell("name")),
			Email:      sanitize.Clean(cell("email")),
			Date:       sanitize.Clean(selectedDate),
			Status:     sanitize.Clean(cell("status")),
			Attendance: sanitize.Clean(cell("attendance")),
		}

		if strings.TrimSpace(row.Email) == "" {
			dropped++
			if ing.logger != nil {
				// 行号按文件计，首行是表头
				ing.logger.Debug("row dropped: empty email after sanitization",
					slog.Int("line", i+2),
					slog.String("name", row.Name),
				)
			}
			continue
		}
		rows = append(rows, row)
	}

	if len(rows) == 0 {
		return Result{}, fmt.Errorf("%w: %d rows dropped", ErrEmptyBatch, dropped)
	}

	inserted, err := ing.inserter.Insert(ctx, rows)
	if err != nil {
		return Result{}, err
	}

	msg := fmt.Sprintf("Successfully uploaded %d rows", inserted)
	if dropped > 0 {
		msg += fmt.Sprintf(" (%d rows dropped: empty email)", dropped)
	}
	return Result{
		RowsUploaded: int(inserted),
		Dropped:      dropped,
		Message:      msg,
	}, nil
}
