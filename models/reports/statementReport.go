package reports

import (
	"context"
	"fmt"
	"time"

	"github.com/earnflowhq/earnflow_backend/models"
	"github.com/earnflowhq/earnflow_backend/utils"
	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"
)

// StatementRow is one ledger line on a user's commission statement.
type StatementRow struct {
	EntryId         int64      `json:"entry_id"`
	AmountCents     int64      `json:"amount_cents"`
	Source          string     `json:"source"`
	Description     string     `json:"description"`
	PaidOut         bool       `json:"paid_out"`
	PaidAt          *time.Time `json:"paid_at"`
	PayoutReference *string    `json:"payout_reference"`
	CreatedAt       time.Time  `json:"created_at"`
}

type Statement struct {
	UserId           string         `json:"user_id"`
	GeneratedAt      time.Time      `json:"generated_at"`
	TotalUnpaidCents int64          `json:"total_unpaid_cents"`
	TotalPaidCents   int64          `json:"total_paid_cents"`
	Rows             []StatementRow `json:"rows"`
}

// GetStatement builds a full ledger statement for a user, oldest entry first.
func GetStatement(ctx context.Context, db *gorm.DB, userId string) (*Statement, error) {
	var entries []models.CommissionEntry
	if err := db.WithContext(ctx).
		Where("user_id = ?", userId).
		Order("id ASC").
		Find(&entries).Error; err != nil {
		return nil, err
	}

	stmt := &Statement{
		UserId:      userId,
		GeneratedAt: time.Now().UTC(),
		Rows:        make([]StatementRow, 0, len(entries)),
	}
	for _, e := range entries {
		if e.PaidOut {
			stmt.TotalPaidCents += e.AmountCents
		} else {
			stmt.TotalUnpaidCents += e.AmountCents
		}
		stmt.Rows = append(stmt.Rows, StatementRow{
			EntryId:         e.ID,
			AmountCents:     e.AmountCents,
			Source:          string(e.Source),
			Description:     e.Description,
			PaidOut:         e.PaidOut,
			PaidAt:          e.PaidAt,
			PayoutReference: e.PayoutReference,
			CreatedAt:       e.CreatedAt,
		})
	}
	return stmt, nil
}

// ExportStatementExcel renders a statement as an xlsx workbook.
func ExportStatementExcel(stmt *Statement) ([]byte, error) {
	f := excelize.NewFile()
	sheetName := "Statement"
	idx, err := f.NewSheet(sheetName)
	if err != nil {
		return nil, err
	}
	f.SetActiveSheet(idx)
	f.DeleteSheet("Sheet1")

	// Add headers
	f.SetCellValue(sheetName, "A1", "EntryId")
	f.SetCellValue(sheetName, "B1", "Date")
	f.SetCellValue(sheetName, "C1", "Source")
	f.SetCellValue(sheetName, "D1", "Description")
	f.SetCellValue(sheetName, "E1", "AmountUSD")
	f.SetCellValue(sheetName, "F1", "PaidOut")
	f.SetCellValue(sheetName, "G1", "PaidAt")
	f.SetCellValue(sheetName, "H1", "PayoutReference")

	// Add data
	for i, r := range stmt.Rows {
		row := fmt.Sprint(i + 2)
		f.SetCellValue(sheetName, "A"+row, r.EntryId)
		f.SetCellValue(sheetName, "B"+row, r.CreatedAt.Format("2006-01-02"))
		f.SetCellValue(sheetName, "C"+row, r.Source)
		f.SetCellValue(sheetName, "D"+row, r.Description)
		f.SetCellValue(sheetName, "E"+row, utils.CentsToDecimal(r.AmountCents).StringFixed(2))
		f.SetCellValue(sheetName, "F"+row, r.PaidOut)
		if r.PaidAt != nil {
			f.SetCellValue(sheetName, "G"+row, r.PaidAt.Format("2006-01-02"))
		}
		if r.PayoutReference != nil {
			f.SetCellValue(sheetName, "H"+row, *r.PayoutReference)
		}
	}

	summaryRow := fmt.Sprint(len(stmt.Rows) + 3)
	f.SetCellValue(sheetName, "D"+summaryRow, "Unpaid total")
	f.SetCellValue(sheetName, "E"+summaryRow, utils.CentsToDecimal(stmt.TotalUnpaidCents).StringFixed(2))

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// UploadStatement exports a user's statement to xlsx, stores it in GCS, and
// returns a time-limited signed download URL.
func UploadStatement(ctx context.Context, db *gorm.DB, userId string) (string, error) {
	stmt, err := GetStatement(ctx, db, userId)
	if err != nil {
		return "", err
	}
	data, err := ExportStatementExcel(stmt)
	if err != nil {
		return "", err
	}
	objectKey := fmt.Sprintf("statements/%s/%s.xlsx", userId, stmt.GeneratedAt.Format("20060102T150405Z"))
	return utils.UploadStatementToGCS(ctx, objectKey, data,
		"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", 24*time.Hour)
}
