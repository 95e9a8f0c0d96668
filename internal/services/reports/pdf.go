package reports

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/go-pdf/fpdf"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"cloudauditor/internal/domain"
)

var severityColors = map[domain.Severity][3]int{
	domain.SeverityCritical: {153, 27, 27},
	domain.SeverityHigh:     {220, 38, 38},
	domain.SeverityMedium:   {217, 119, 6},
	domain.SeverityLow:      {37, 99, 235},
	domain.SeverityInfo:     {100, 116, 139},
}

var severityOrder = []domain.Severity{
	domain.SeverityCritical, domain.SeverityHigh, domain.SeverityMedium, domain.SeverityLow, domain.SeverityInfo,
}

type page struct {
	pdf   *fpdf.Fpdf
	tr    func(string) string
	title cases.Caser
}

func render(w io.Writer, typ domain.ReportType, title string, d domain.ScanDetail, now time.Time) error {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetTitle(title, true)
	pdf.SetAuthor("Cloud Security Auditor", true)
	pdf.SetCreationDate(now)
	pdf.SetModificationDate(now)
	pdf.SetMargins(15, 15, 15)
	pdf.SetAutoPageBreak(true, 15)
	pdf.AliasNbPages("")
	pdf.SetFooterFunc(func() {
		pdf.SetY(-12)
		pdf.SetFont("Helvetica", "I", 8)
		pdf.SetTextColor(120, 120, 120)
		pdf.CellFormat(0, 6, fmt.Sprintf("Page %d/{nb}", pdf.PageNo()), "", 0, "C", false, 0, "")
	})

	p := &page{pdf: pdf, tr: pdf.UnicodeTranslatorFromDescriptor(""), title: cases.Title(language.English)}

	pdf.AddPage()
	p.cover(title, d, now)
	p.summary(d)

	switch typ {
	case domain.ReportExecutive:
		p.compliance(d, false)
		p.topFindings(d, 5)
	case domain.ReportTechnical:
		p.findings(d)
		p.threats(d)
	case domain.ReportCompliance:
		p.compliance(d, true)
	}

	if err := pdf.Error(); err != nil {
		return err
	}
	return pdf.Output(w)
}

func (p *page) header(text string) {
	p.pdf.Ln(4)
	p.pdf.SetFont("Helvetica", "B", 14)
	p.pdf.SetTextColor(30, 41, 59)
	p.pdf.CellFormat(0, 9, p.tr(text), "B", 1, "L", false, 0, "")
	p.pdf.Ln(2)
}

func (p *page) text(size float64, s string) {
	p.pdf.SetFont("Helvetica", "", size)
	p.pdf.SetTextColor(60, 60, 60)
	p.pdf.MultiCell(0, 5, p.tr(s), "", "L", false)
}

func (p *page) cover(title string, d domain.ScanDetail, now time.Time) {
	p.pdf.SetFont("Helvetica", "B", 20)
	p.pdf.SetTextColor(15, 23, 42)
	p.pdf.MultiCell(0, 10, p.tr(title), "", "L", false)
	p.pdf.Ln(2)

	end := "-"
	if d.EndTime != nil {
		end = d.EndTime.UTC().Format(time.RFC1123)
	}
	rows := [][2]string{
		{"Scan", d.Name},
		{"Target", d.Target},
		{"Scope", p.title.String(string(d.Scope))},
		{"Started", d.StartTime.UTC().Format(time.RFC1123)},
		{"Finished", end},
		{"Generated", now.Format(time.RFC1123)},
	}
	for _, r := range rows {
		p.pdf.SetFont("Helvetica", "B", 10)
		p.pdf.SetTextColor(80, 80, 80)
		p.pdf.CellFormat(30, 6, r[0], "", 0, "L", false, 0, "")
		p.pdf.SetFont("Helvetica", "", 10)
		p.pdf.CellFormat(0, 6, p.tr(r[1]), "", 1, "L", false, 0, "")
	}
}

func (p *page) summary(d domain.ScanDetail) {
	p.header("Summary")
	counts := domain.SeverityCounts(d.Findings)
	p.text(10, fmt.Sprintf("%d findings and %d threats were identified. Port and CVE data comes from a passive "+
		"third-party host database; no active port scan was performed.", len(d.Findings), len(d.Threats)))
	p.pdf.Ln(3)

	w := 180.0 / float64(len(severityOrder))
	p.pdf.SetFont("Helvetica", "B", 9)
	for _, sev := range severityOrder {
		c := severityColors[sev]
		p.pdf.SetFillColor(c[0], c[1], c[2])
		p.pdf.SetTextColor(255, 255, 255)
		p.pdf.CellFormat(w, 7, p.title.String(string(sev)), "1", 0, "C", true, 0, "")
	}
	p.pdf.Ln(-1)
	p.pdf.SetFont("Helvetica", "", 11)
	p.pdf.SetTextColor(30, 30, 30)
	for _, sev := range severityOrder {
		p.pdf.CellFormat(w, 8, fmt.Sprintf("%d", counts[sev]), "1", 0, "C", false, 0, "")
	}
	p.pdf.Ln(-1)
}

func (p *page) compliance(d domain.ScanDetail, withControls bool) {
	if len(d.Compliance) == 0 {
		return
	}
	p.header("Compliance")

	p.pdf.SetFont("Helvetica", "B", 9)
	p.pdf.SetFillColor(30, 41, 59)
	p.pdf.SetTextColor(255, 255, 255)
	p.pdf.CellFormat(80, 7, "Framework", "1", 0, "L", true, 0, "")
	p.pdf.CellFormat(25, 7, "Score", "1", 0, "C", true, 0, "")
	p.pdf.CellFormat(25, 7, "Passed", "1", 0, "C", true, 0, "")
	p.pdf.CellFormat(25, 7, "Failed", "1", 0, "C", true, 0, "")
	p.pdf.CellFormat(25, 7, "N/A", "1", 1, "C", true, 0, "")

	p.pdf.SetFont("Helvetica", "", 9)
	p.pdf.SetTextColor(40, 40, 40)
	for _, fw := range d.Compliance {
		p.pdf.CellFormat(80, 7, p.tr(fw.Name), "1", 0, "L", false, 0, "")
		p.pdf.CellFormat(25, 7, fmt.Sprintf("%d%%", fw.Score), "1", 0, "C", false, 0, "")
		p.pdf.CellFormat(25, 7, fmt.Sprintf("%d", fw.PassedControls), "1", 0, "C", false, 0, "")
		p.pdf.CellFormat(25, 7, fmt.Sprintf("%d", fw.FailedControls), "1", 0, "C", false, 0, "")
		p.pdf.CellFormat(25, 7, fmt.Sprintf("%d", fw.NAControls), "1", 1, "C", false, 0, "")
	}

	if !withControls {
		return
	}
	for _, fw := range d.Compliance {
		p.header(fw.Name)
		for _, c := range fw.Controls {
			switch c.Status {
			case domain.ControlPass:
				p.pdf.SetTextColor(22, 163, 74)
			case domain.ControlFail:
				p.pdf.SetTextColor(220, 38, 38)
			default:
				p.pdf.SetTextColor(120, 120, 120)
			}
			p.pdf.SetFont("Helvetica", "B", 9)
			p.pdf.CellFormat(15, 6, string(c.Status), "1", 0, "C", false, 0, "")
			p.pdf.SetTextColor(40, 40, 40)
			p.pdf.CellFormat(25, 6, p.tr(c.ControlID), "1", 0, "L", false, 0, "")
			p.pdf.SetFont("Helvetica", "", 9)
			p.pdf.CellFormat(0, 6, p.tr(c.Description), "1", 1, "L", false, 0, "")
		}
	}
}

func sortedFindings(vulns []domain.Vulnerability) []domain.Vulnerability {
	out := append([]domain.Vulnerability(nil), vulns...)
	sort.SliceStable(out, func(i, j int) bool {
		if a, b := out[i].Severity.Score(), out[j].Severity.Score(); a != b {
			return a > b
		}
		return out[i].CVSSScore > out[j].CVSSScore
	})
	return out
}

func (p *page) topFindings(d domain.ScanDetail, n int) {
	if len(d.Findings) == 0 {
		return
	}
	p.header("Top Findings")
	top := sortedFindings(d.Findings)
	if len(top) > n {
		top = top[:n]
	}
	for _, v := range top {
		p.findingLine(v)
	}
}

func (p *page) findingLine(v domain.Vulnerability) {
	c := severityColors[v.Severity]
	p.pdf.SetFont("Helvetica", "B", 9)
	p.pdf.SetTextColor(c[0], c[1], c[2])
	p.pdf.CellFormat(20, 6, p.title.String(string(v.Severity)), "", 0, "L", false, 0, "")
	p.pdf.SetTextColor(30, 30, 30)
	p.pdf.CellFormat(0, 6, p.tr(fmt.Sprintf("%s (CVSS %.1f)", v.Title, v.CVSSScore)), "", 1, "L", false, 0, "")
}

func (p *page) findings(d domain.ScanDetail) {
	p.header("Findings")
	if len(d.Findings) == 0 {
		p.text(10, "No findings.")
		return
	}
	for _, v := range sortedFindings(d.Findings) {
		p.findingLine(v)
		p.text(9, "Resource: "+v.AffectedResource)
		p.text(9, v.Description)
		p.text(9, "Remediation: "+v.Remediation)
		p.pdf.Ln(2)
	}
}

func (p *page) threats(d domain.ScanDetail) {
	if len(d.Threats) == 0 {
		return
	}
	p.header("Threats")
	for _, t := range d.Threats {
		c := severityColors[t.Severity]
		p.pdf.SetFont("Helvetica", "B", 10)
		p.pdf.SetTextColor(c[0], c[1], c[2])
		p.pdf.CellFormat(0, 6, p.tr(fmt.Sprintf("%s [%s]", t.Type, t.Severity)), "", 1, "L", false, 0, "")
		p.text(9, t.Description)
		p.text(9, "Recommended action: "+t.RecommendedAction)
		p.pdf.Ln(2)
	}
}
