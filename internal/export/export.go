// Package export renders the queue backlog as an Excel workbook for
// operators who triage permanently failed submissions by hand.
package export

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"bookrelay/internal/models"

	"github.com/xuri/excelize/v2"
)

const sheetName = "Queue"

// BuildQueueReport создает Excel файл с текущим содержимым очереди.
func BuildQueueReport(items []models.QueueItem) (*excelize.File, error) {
	f := excelize.NewFile()

	index, err := f.NewSheet(sheetName)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("error creating sheet: %v", err)
	}
	f.SetActiveSheet(index)

	headers := []string{
		"ID", "Status", "Attempts", "Created", "Last attempt", "Next retry", "Last error", "Payload",
	}
	headerStyle, _ := f.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font:      &excelize.Font{Bold: true},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	for i, header := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheetName, cell, header)
		_ = f.SetCellStyle(sheetName, cell, cell, headerStyle)
	}

	for i, item := range items {
		row := i + 2
		_ = f.SetCellValue(sheetName, fmt.Sprintf("A%d", row), item.ID)
		_ = f.SetCellValue(sheetName, fmt.Sprintf("B%d", row), item.Status)
		_ = f.SetCellValue(sheetName, fmt.Sprintf("C%d", row), item.Attempts)
		_ = f.SetCellValue(sheetName, fmt.Sprintf("D%d", row), item.CreatedAt.Format("02.01.2006 15:04:05"))
		_ = f.SetCellValue(sheetName, fmt.Sprintf("E%d", row), formatOptionalTime(item.LastAttemptAt))
		_ = f.SetCellValue(sheetName, fmt.Sprintf("F%d", row), formatOptionalTime(item.NextRetryAt))
		_ = f.SetCellValue(sheetName, fmt.Sprintf("G%d", row), item.LastError)
		_ = f.SetCellValue(sheetName, fmt.Sprintf("H%d", row), string(item.Payload))

		if item.Status == models.StatusPermanentlyFailed {
			style, serr := f.NewStyle(&excelize.Style{
				Fill: excelize.Fill{Type: "pattern", Color: []string{"#FFC7CE"}, Pattern: 1},
			})
			if serr == nil {
				start, _ := excelize.CoordinatesToCellName(1, row)
				end, _ := excelize.CoordinatesToCellName(len(headers), row)
				_ = f.SetCellStyle(sheetName, start, end, style)
			}
		}
	}

	// Настраиваем ширину колонок
	_ = f.SetColWidth(sheetName, "A", "A", 38)
	_ = f.SetColWidth(sheetName, "B", "B", 18)
	_ = f.SetColWidth(sheetName, "C", "C", 10)
	_ = f.SetColWidth(sheetName, "D", "F", 20)
	_ = f.SetColWidth(sheetName, "G", "G", 40)
	_ = f.SetColWidth(sheetName, "H", "H", 60)

	// Удаляем стандартный лист
	_ = f.DeleteSheet("Sheet1")

	return f, nil
}

// SaveQueueReport записывает отчет очереди в каталог экспорта.
func SaveQueueReport(items []models.QueueItem, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("error creating export directory: %v", err)
	}

	f, err := BuildQueueReport(items)
	if err != nil {
		return "", err
	}
	defer f.Close()

	fileName := fmt.Sprintf("queue_export_%s.xlsx", time.Now().Format("2006-01-02_15-04-05"))
	filePath := filepath.Join(dir, fileName)
	if err := f.SaveAs(filePath); err != nil {
		return "", fmt.Errorf("error saving file: %v", err)
	}
	return filePath, nil
}

func formatOptionalTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format("02.01.2006 15:04:05")
}
