package api

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/sundaiclub/verifAI/internal/ingest"
	"github.com/sundaiclub/verifAI/internal/pkg/dedup"
	"github.com/sundaiclub/verifAI/internal/pkg/metrics"
)

// attendanceMarker 是核验通过后写入 attendance 字段的标记值。
const attendanceMarker = "True"

// uploadResponse CSV 上传的响应。
type uploadResponse struct {
	Success      bool   `json:"success"`
	RowsUploaded int    `json:"rows_uploaded"`
	Message      string `json:"message"`
}

// verifyRequest 宾客核验的请求参数。
type verifyRequest struct {
	Field string `json:"field" binding:"required"` // "email" 或 "name"
	Value string `json:"value" binding:"required"`
	Date  string `json:"date" binding:"required"`
}

type verifyResponse struct {
	Exists  bool   `json:"exists"`
	Message string `json:"message"`
}

// attendanceUpdateRequest 显式修改签到状态的请求参数。
type attendanceUpdateRequest struct {
	Email      string `json:"email" binding:"required"`
	Date       string `json:"date" binding:"required"`
	Attendance string `json:"attendance"` // 空串表示清除签到
}

type attendanceUpdateResponse struct {
	Success     bool   `json:"success"`
	RowsUpdated int64  `json:"rows_updated"`
	Message     string `json:"message"`
}

// handleUploadCSV 处理 CSV 名单上传。
//
// POST /upload-csv/  (multipart: file, selected_date, selected_columns)
func (s *Server) handleUploadCSV(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, uploadResponse{Success: false, Message: "file is required"})
		return
	}
	if !strings.HasSuffix(strings.ToLower(fileHeader.Filename), ".csv") {
		c.JSON(http.StatusBadRequest, uploadResponse{Success: false, Message: "only CSV files are supported"})
		return
	}
	if s.cfg.App.MaxUploadBytes > 0 && fileHeader.Size > s.cfg.App.MaxUploadBytes {
		c.JSON(http.StatusBadRequest, uploadResponse{Success: false, Message: "file too large"})
		return
	}

	selectedDate := strings.TrimSpace(c.PostForm("selected_date"))
	if selectedDate == "" {
		c.JSON(http.StatusBadRequest, uploadResponse{Success: false, Message: "selected_date is required"})
		return
	}
	selectedColumns := splitColumns(c.PostForm("selected_columns"))

	f, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusInternalServerError, uploadResponse{Success: false, Message: "read upload failed"})
		return
	}
	defer f.Close()

	payload, err := io.ReadAll(f)
	if err != nil {
		c.JSON(http.StatusInternalServerError, uploadResponse{Success: false, Message: "read upload failed"})
		return
	}

	ctx := c.Request.Context()

	// 同一文件 + 同一日期在窗口内只接受一次
	fingerprint := dedup.Fingerprint(payload, selectedDate)
	if s.deduper != nil {
		dup, err := s.deduper.IsDuplicate(ctx, fingerprint)
		if err != nil {
			s.logger.Warn("upload dedup check failed", slog.String("error", err.Error()))
		} else if dup {
			s.logger.Info("duplicate upload skipped", slog.String("date", selectedDate))
			metrics.UploadDuplicatePreventedTotal.Inc()
			c.JSON(http.StatusOK, uploadResponse{
				Success: false,
				Message: "duplicate upload skipped",
			})
			return
		}
	}

	start := time.Now()
	res, err := s.ingestor.Ingest(ctx, bytes.NewReader(payload), selectedDate, selectedColumns)
	metrics.UploadDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		// 失败的上传不占用去重窗口
		if s.deduper != nil {
			if relErr := s.deduper.Release(ctx, fingerprint); relErr != nil {
				s.logger.Warn("dedup release failed", slog.String("error", relErr.Error()))
			}
		}
		switch {
		case errors.Is(err, ingest.ErrBadFormat),
			errors.Is(err, ingest.ErrMissingColumns),
			errors.Is(err, ingest.ErrEmptyBatch):
			c.JSON(http.StatusBadRequest, uploadResponse{Success: false, Message: err.Error()})
		default:
			s.logger.Error("csv upload failed", slog.String("date", selectedDate), slog.String("error", err.Error()))
			c.JSON(http.StatusInternalServerError, uploadResponse{Success: false, Message: "Failed to upload CSV: " + err.Error()})
		}
		return
	}

	metrics.CSVUploadsTotal.Inc()
	metrics.RowsUploadedTotal.Add(float64(res.RowsUploaded))
	metrics.RowsDroppedTotal.Add(float64(res.Dropped))
	s.logger.Info("csv uploaded",
		slog.String("date", selectedDate),
		slog.Int("rows", res.RowsUploaded),
		slog.Int("dropped", res.Dropped),
	)

	c.JSON(http.StatusOK, uploadResponse{
		Success:      true,
		RowsUploaded: res.RowsUploaded,
		Message:      res.Message,
	})
}

// handleVerify 核验宾客是否在名单内，在则顺手标记签到。
//
// POST /verify/
//
// 查找和更新使用同一个谓词 (field=value, date)：按 name 核验时
// 标记的也是 name 匹配到的行。重复标记是无操作的成功。
func (s *Server) handleVerify(c *gin.Context) {
	var req verifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Field != "email" && req.Field != "name" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "field must be 'email' or 'name'"})
		return
	}

	ctx := c.Request.Context()

	exists, err := s.store.Exists(ctx, req.Field, req.Value, req.Date)
	if err != nil {
		s.logger.Error("verification lookup failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Verification failed: " + err.Error()})
		return
	}
	metrics.VerificationsTotal.Inc()

	if !exists {
		c.JSON(http.StatusOK, verifyResponse{
			Exists:  false,
			Message: "Guest not found for the given date",
		})
		return
	}

	// 已标记的行再标记一次是无操作，因此无条件尝试更新
	if _, err := s.store.UpdateAttendance(ctx, req.Field, req.Value, req.Date, attendanceMarker); err != nil {
		s.logger.Error("attendance marking failed",
			slog.String("field", req.Field),
			slog.String("date", req.Date),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Attendance update failed: " + err.Error()})
		return
	}
	metrics.CheckinsTotal.Inc()

	c.JSON(http.StatusOK, verifyResponse{
		Exists:  true,
		Message: "Verified and attendance marked",
	})
}

// handleColumns 返回仓库表当前的字段名。
//
// GET /columns/
func (s *Server) handleColumns(c *gin.Context) {
	cols, err := s.store.Columns(c.Request.Context())
	if err != nil {
		s.logger.Error("get columns failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get columns: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"columns": cols})
}

// handleUpdateAttendance 显式修改某位宾客某个日期的签到状态。
//
// POST /update-attendance/
func (s *Server) handleUpdateAttendance(c *gin.Context) {
	var req attendanceUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	rows, err := s.store.UpdateAttendance(c.Request.Context(), "email", req.Email, req.Date, req.Attendance)
	if err != nil {
		s.logger.Error("attendance update failed",
			slog.String("date", req.Date),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusInternalServerError, attendanceUpdateResponse{
			Success: false,
			Message: "Attendance update failed: " + err.Error(),
		})
		return
	}
	if rows == 0 {
		c.JSON(http.StatusOK, attendanceUpdateResponse{
			Success:     false,
			RowsUpdated: 0,
			Message:     "No matching records found to update",
		})
		return
	}

	c.JSON(http.StatusOK, attendanceUpdateResponse{
		Success:     true,
		RowsUpdated: rows,
		Message:     fmt.Sprintf("Updated attendance for %s on %s", req.Email, req.Date),
	})
}

// handleEvents 返回全部活动日期的汇总统计。
//
// GET /events/
func (s *Server) handleEvents(c *gin.Context) {
	stats, err := s.store.Events(c.Request.Context())
	if err != nil {
		s.logger.Error("list events failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve events: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, stats)
}

// handleAttendanceStats 返回单个活动日期的统计。
//
// GET /attendance/:date
func (s *Server) handleAttendanceStats(c *gin.Context) {
	date := c.Param("date")
	stat, err := s.store.StatsForDate(c.Request.Context(), date)
	if err != nil {
		s.logger.Error("attendance stats failed", slog.String("date", date), slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get attendance stats: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, stat)
}

// splitColumns 把逗号分隔的列选择解析为列名切片，空白项被丢弃。
func splitColumns(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	cols := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			cols = append(cols, p)
		}
	}
	return cols
}
