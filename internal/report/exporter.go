// Package report 把会话汇总导出为 Excel 工作簿（Summary + Intervals 两个工作表）。
package report

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"wisefido-hrv/internal/models"
)

const (
	summarySheet   = "Summary"
	intervalsSheet = "Intervals"
)

// Exporter 会话工作簿导出器，实现 session.Recorder
type Exporter struct {
	dir    string
	logger *zap.Logger
}

// NewExporter 创建导出器，文件写入 dir
func NewExporter(dir string, logger *zap.Logger) *Exporter {
	return &Exporter{dir: dir, logger: logger}
}

// FileName 会话工作簿文件名
func FileName(rec *models.SessionRecord) string {
	id := rec.SessionID
	if len(id) > 8 {
		id = id[:8]
	}
	return fmt.Sprintf("hrv-%s-%s.xlsx", rec.StartedAt.UTC().Format("20060102-150405"), id)
}

// Record 生成工作簿并写入目录
func (e *Exporter) Record(ctx context.Context, rec *models.SessionRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := Build(rec)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create report dir: %w", err)
	}
	path := filepath.Join(e.dir, FileName(rec))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	e.logger.Info("Session report written",
		zap.String("session_id", rec.SessionID),
		zap.String("path", path),
	)
	return nil
}

// Build 生成工作簿内容
func Build(rec *models.SessionRecord) ([]byte, error) {
	f := excelize.NewFile()

	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to rename sheet: %w", err)
	}
	if _, err := f.NewSheet(intervalsSheet); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{
			Type:    "pattern",
			Color:   []string{"#E6F3FF"},
			Pattern: 1,
		},
	})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	if err := writeSummary(f, rec, headerStyle); err != nil {
		f.Close()
		return nil, err
	}
	if err := writeIntervals(f, rec.Intervals, headerStyle); err != nil {
		f.Close()
		return nil, err
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write to buffer: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("failed to close file: %w", err)
	}
	return buf.Bytes(), nil
}

func writeSummary(f *excelize.File, rec *models.SessionRecord, headerStyle int) error {
	rows := [][2]interface{}{
		{"Field", "Value"},
		{"Session ID", rec.SessionID},
		{"Started At", rec.StartedAt.UTC().Format(time.RFC3339)},
		{"Ended At", rec.EndedAt.UTC().Format(time.RFC3339)},
		{"Stop Reason", string(rec.StopReason)},
		{"Valid PPI", len(rec.Intervals)},
	}
	if rec.Metrics != nil {
		m := rec.Metrics.Rounded()
		rows = append(rows,
			[2]interface{}{"Mean PPI (ms)", m.MeanPPI},
			[2]interface{}{"Mean HR (bpm)", m.MeanHR},
			[2]interface{}{"SDNN (ms)", m.SDNN},
			[2]interface{}{"RMSSD (ms)", m.RMSSD},
		)
	}
	if rec.Indices != nil {
		idx := rec.Indices.Rounded()
		rows = append(rows,
			[2]interface{}{"SNS Index", idx.SNS},
			[2]interface{}{"PNS Index", idx.PNS},
		)
	}
	if rec.Label != "" {
		rows = append(rows, [2]interface{}{"Label", string(rec.Label)})
	}
	if rec.Failure != "" {
		rows = append(rows, [2]interface{}{"Failure", rec.Failure})
	}

	for i, row := range rows {
		for col, v := range row {
			if err := setCellValue(f, summarySheet, col+1, i+1, v); err != nil {
				return fmt.Errorf("failed to set summary cell: %w", err)
			}
		}
	}
	if err := f.SetCellStyle(summarySheet, "A1", "B1", headerStyle); err != nil {
		return fmt.Errorf("failed to set header style: %w", err)
	}
	return f.SetColWidth(summarySheet, "A", "B", 40)
}

func writeIntervals(f *excelize.File, intervals []int, headerStyle int) error {
	headers := []string{"#", "PPI (ms)", "HR (bpm)"}
	for col, h := range headers {
		if err := setCellValue(f, intervalsSheet, col+1, 1, h); err != nil {
			return fmt.Errorf("failed to set header cell: %w", err)
		}
	}
	if err := f.SetCellStyle(intervalsSheet, "A1", "C1", headerStyle); err != nil {
		return fmt.Errorf("failed to set header style: %w", err)
	}

	for i, ppi := range intervals {
		row := i + 2
		values := []interface{}{i + 1, ppi, int(math.Round(60000 / float64(ppi)))}
		for col, v := range values {
			if err := setCellValue(f, intervalsSheet, col+1, row, v); err != nil {
				return fmt.Errorf("failed to set cell value at row %d: %w", row, err)
			}
		}
	}
	return nil
}

// setCellValue 设置单元格值
func setCellValue(f *excelize.File, sheet string, col, row int, value interface{}) error {
	cell, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return err
	}
	return f.SetCellValue(sheet, cell, value)
}
