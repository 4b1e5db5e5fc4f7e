package render

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"

	"github.com/Masterminds/sprig/v3"
)

const broadcastTemplate = `<html>
<body style="font-family: Arial, sans-serif; color: #222;">
  <h2>{{ .Subject }}</h2>
  <p>Dear {{ default "Student" .StudentName }},</p>
  <p>{{ .Message }}</p>
  <hr/>
  <p style="color: #888; font-size: 12px;">
    Sent by StudentDesk on {{ .SentDate }}.
  </p>
</body>
</html>`

const reportTemplate = `<html>
<body style="font-family: Arial, sans-serif; color: #222;">
  <h2>{{ .ReportName | title }}</h2>
  <p>Hello,</p>
  <p>The {{ .ReportName }} for {{ .RunDate }} is attached as <b>{{ .FileName }}</b>.</p>
  <p style="color: #888; font-size: 12px;">
    This message was generated automatically.
  </p>
</body>
</html>`

const studentReportTemplate = `<html>
<body style="font-family: Arial, sans-serif; color: #222;">
  <h2>Your Daily Report</h2>
  <p>Dear {{ default "Student" .StudentName }},</p>
  <p>Here is your StudentDesk delivery summary for {{ .ReportDate }}.</p>
  <table style="border-collapse: collapse;">
    <tr><td style="padding: 4px 12px 4px 0;">Delivered</td><td>{{ .Delivered }}</td></tr>
    <tr><td style="padding: 4px 12px 4px 0;">Failed</td><td>{{ .Failed }}</td></tr>
    <tr><td style="padding: 4px 12px 4px 0;">Pending</td><td>{{ .Pending }}</td></tr>
  </table>
  {{ if .LastDelivery }}<p>Last delivery: {{ .LastDelivery }}.</p>{{ end }}
  <p>If you have any questions, please contact your administrator.</p>
  <p style="color: #888; font-size: 12px;">
    This message was generated automatically.
  </p>
</body>
</html>`

// BroadcastData feeds the announcement email body.
type BroadcastData struct {
	StudentName string
	Subject     string
	Message     string
	SentDate    string
}

// ReportData feeds the daily report email body.
type ReportData struct {
	ReportName string
	RunDate    string
	FileName   string
}

// StudentReportData feeds the per-student daily report body.
type StudentReportData struct {
	StudentName  string
	ReportDate   string
	Delivered    int64
	Failed       int64
	Pending      int64
	LastDelivery string
}

// Renderer builds HTML email bodies from the built-in templates. Templates
// are parsed once at construction so a bad template fails at startup rather
// than at send time.
type Renderer struct {
	broadcast     *template.Template
	report        *template.Template
	studentReport *template.Template
}

func NewRenderer() (*Renderer, error) {
	broadcast, err := parseTemplate("broadcast", broadcastTemplate)
	if err != nil {
		return nil, err
	}

	report, err := parseTemplate("report", reportTemplate)
	if err != nil {
		return nil, err
	}

	studentReport, err := parseTemplate("studentReport", studentReportTemplate)
	if err != nil {
		return nil, err
	}

	return &Renderer{
		broadcast:     broadcast,
		report:        report,
		studentReport: studentReport,
	}, nil
}

func parseTemplate(name, text string) (*template.Template, error) {
	tmpl, err := template.New(name).Funcs(sprig.FuncMap()).Parse(text)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s template: %w", name, err)
	}

	return tmpl, nil
}

func (r *Renderer) Broadcast(data BroadcastData) (string, error) {
	if strings.TrimSpace(data.Subject) == "" {
		return "", fmt.Errorf("subject is required")
	}

	return r.execute(r.broadcast, data)
}

func (r *Renderer) Report(data ReportData) (string, error) {
	if strings.TrimSpace(data.ReportName) == "" {
		return "", fmt.Errorf("report name is required")
	}

	return r.execute(r.report, data)
}

func (r *Renderer) StudentReport(data StudentReportData) (string, error) {
	if strings.TrimSpace(data.ReportDate) == "" {
		return "", fmt.Errorf("report date is required")
	}

	return r.execute(r.studentReport, data)
}

func (r *Renderer) execute(tmpl *template.Template, data any) (string, error) {
	if r == nil || tmpl == nil {
		return "", fmt.Errorf("renderer is not initialized")
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render %s template: %w", tmpl.Name(), err)
	}

	return buf.String(), nil
}
