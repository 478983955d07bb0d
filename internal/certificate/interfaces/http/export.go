package http

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"

	certificateapp "irec-issuer/internal/certificate/application"
)

// BuildCertificatePDF renders a one-page certificate summary.
func BuildCertificatePDF(view certificateapp.CertificateDTO) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetFont("Arial", "B", 16)
	pdf.AddPage()

	pdf.Cell(0, 10, "Renewable Energy Certificate")
	pdf.Ln(14)
	pdf.SetFont("Arial", "", 10)

	rows := [][2]string{
		{"Certificate ID", fmt.Sprintf("%d", view.ID)},
		{"Device", view.DeviceID},
		{"Owner", view.Owner},
		{"Generation start", time.Unix(view.GenerationStartTime, 0).UTC().Format(time.RFC3339)},
		{"Generation end", time.Unix(view.GenerationEndTime, 0).UTC().Format(time.RFC3339)},
		{"Issued", time.Unix(view.CreationTime, 0).UTC().Format(time.RFC3339)},
		{"Public volume (Wh)", view.Energy.PublicVolume},
		{"Private volume (Wh)", view.Energy.PrivateVolume},
		{"Issued privately", fmt.Sprintf("%t", view.IssuedPrivately)},
		{"Block hash", view.CreationBlockHash},
		{"Transaction", view.TxHash},
		{"Certification request", fmt.Sprintf("%d", view.CertificationRequestID)},
	}
	for _, row := range rows {
		pdf.SetFont("Arial", "B", 10)
		pdf.CellFormat(50, 7, row[0], "1", 0, "L", false, 0, "")
		pdf.SetFont("Arial", "", 9)
		pdf.CellFormat(130, 7, row[1], "1", 0, "L", false, 0, "")
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
