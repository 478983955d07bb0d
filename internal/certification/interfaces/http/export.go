package http

import (
	"bytes"
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"

	certification "irec-issuer/internal/certification/domain"
)

// BuildRequestsXLSX renders certification requests as a spreadsheet.
func BuildRequestsXLSX(requests []*certification.Request) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()
	sheet := "requests"
	f.SetSheetName("Sheet1", sheet)

	headers := []string{"ID", "Device", "Owner", "From", "To", "Energy (Wh)", "Private", "Status", "Certificate", "Created"}
	for i, header := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, header)
	}
	for i, req := range requests {
		row := i + 2
		certificateID := ""
		if req.IssuedCertificateID != 0 {
			certificateID = fmt.Sprintf("%d", req.IssuedCertificateID)
		}
		_ = f.SetCellValue(sheet, fmt.Sprintf("A%d", row), req.ID)
		_ = f.SetCellValue(sheet, fmt.Sprintf("B%d", row), req.DeviceID)
		_ = f.SetCellValue(sheet, fmt.Sprintf("C%d", row), req.Owner)
		_ = f.SetCellValue(sheet, fmt.Sprintf("D%d", row), req.FromTime.Format(time.RFC3339))
		_ = f.SetCellValue(sheet, fmt.Sprintf("E%d", row), req.ToTime.Format(time.RFC3339))
		_ = f.SetCellValue(sheet, fmt.Sprintf("F%d", row), certification.FormatEnergy(req.Energy))
		_ = f.SetCellValue(sheet, fmt.Sprintf("G%d", row), req.IsPrivate)
		_ = f.SetCellValue(sheet, fmt.Sprintf("H%d", row), string(req.Status()))
		_ = f.SetCellValue(sheet, fmt.Sprintf("I%d", row), certificateID)
		_ = f.SetCellValue(sheet, fmt.Sprintf("J%d", row), req.CreatedAt.Format(time.RFC3339))
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
