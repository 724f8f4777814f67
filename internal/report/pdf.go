package report

import (
	"bytes"
	"fmt"
	"io"

	"github.com/jung-kurt/gofpdf"
)

func bytesReader(b []byte) io.Reader {
	return bytes.NewReader(b)
}

// SavePDF renders rep into a one-page PDF, optionally with a QR code
// encoding qrPayload (typically the primary output's SHA-256; skipped when
// empty).
func SavePDF(rep Summary, out string, qrPayload string) error {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("dlt-sort Run Summary", false)
	pdf.SetAuthor("dltsort", false)
	pdf.SetCreator("dltsort", false)
	pdf.SetMargins(15, 20, 15)
	pdf.SetAutoPageBreak(true, 20)
	pdf.AddPage()

	addPDFTitle(pdf, "dlt-sort Run Summary")
	addFilesSection(pdf, rep)
	addEcuTableSection(pdf, rep.Ecus)
	addTotalsSection(pdf, rep)

	if qrPayload != "" {
		if err := addQRSection(pdf, qrPayload); err != nil {
			return err
		}
	}

	if pdf.Err() {
		return pdf.Error()
	}
	return pdf.OutputFileAndClose(out)
}

func addPDFTitle(pdf *gofpdf.Fpdf, title string) {
	pdf.SetFont("Helvetica", "B", 18)
	pdf.Cell(0, 10, title)
	pdf.Ln(12)
}

func addFilesSection(pdf *gofpdf.Fpdf, rep Summary) {
	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 8, "Files")
	pdf.Ln(8)

	pdf.SetFont("Helvetica", "", 10)
	for _, p := range rep.InputFiles {
		pdf.MultiCell(0, 5, "in:  "+p, "", "L", false)
	}
	for _, p := range rep.OutputFiles {
		pdf.MultiCell(0, 5, "out: "+p, "", "L", false)
	}
	pdf.Ln(4)
}

func addEcuTableSection(pdf *gofpdf.Fpdf, ecus []EcuSummary) {
	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 8, "ECUs")
	pdf.Ln(9)

	headers := []string{"ECU", "Messages", "Lifecycles"}
	widths := []float64{40, 40, 40}

	pdf.SetFillColor(240, 240, 240)
	pdf.SetFont("Helvetica", "B", 10)
	for i, h := range headers {
		pdf.CellFormat(widths[i], 7, h, "1", 0, "L", true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Helvetica", "", 9)
	for _, e := range ecus {
		pdf.CellFormat(widths[0], 6, e.EcuID, "1", 0, "L", false, 0, "")
		pdf.CellFormat(widths[1], 6, fmt.Sprintf("%d", e.Messages), "1", 0, "R", false, 0, "")
		pdf.CellFormat(widths[2], 6, fmt.Sprintf("%d", e.Lifecycles), "1", 1, "R", false, 0, "")
	}
	pdf.Ln(4)
}

func addTotalsSection(pdf *gofpdf.Fpdf, rep Summary) {
	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 8, "Totals")
	pdf.Ln(8)

	pdf.SetFont("Helvetica", "", 11)
	items := []struct {
		label string
		value string
	}{
		{"Overall lifecycles", fmt.Sprintf("%d", rep.OverallLifecycles)},
		{"Messages emitted", fmt.Sprintf("%d", rep.MessagesEmitted)},
		{"Resyncs", fmt.Sprintf("%d", rep.Resyncs)},
		{"Duration", rep.Duration.String()},
	}
	for _, item := range items {
		pdf.CellFormat(50, 6, item.label, "", 0, "L", false, 0, "")
		pdf.CellFormat(0, 6, item.value, "", 1, "L", false, 0, "")
	}
	pdf.Ln(4)
}

func addQRSection(pdf *gofpdf.Fpdf, payload string) error {
	png, err := HashToQR(payload, 128)
	if err != nil {
		return err
	}
	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 8, "Primary output")
	pdf.Ln(9)

	opt := gofpdf.ImageOptions{ImageType: "PNG"}
	pdf.RegisterImageOptionsReader("primary-output-qr", opt, bytesReader(png))
	pdf.ImageOptions("primary-output-qr", pdf.GetX(), pdf.GetY(), 30, 30, false, opt, 0, "")
	pdf.Ln(32)
	return nil
}
