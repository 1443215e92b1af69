package orchestrator

import (
	"bytes"
	"fmt"
	"html/template"
)

type offerEmail struct {
	CandidateName string
	Position      string
	CompanyName   string
	SenderName    string
}

var offerEmailBody = template.Must(template.New("offer-email").Parse(`<p>Dear {{.CandidateName}},</p>
<p>We are delighted to offer you the position of <strong>{{.Position}}</strong>{{if .CompanyName}} at {{.CompanyName}}{{end}}.</p>
<p>Your offer letter is attached. Please review it and let us know your decision.</p>
<p>Kind regards,<br>{{if .SenderName}}{{.SenderName}}{{else}}The hiring team{{end}}</p>
`))

func renderOfferEmail(e offerEmail) (subject string, body string, err error) {
	var buf bytes.Buffer
	if err := offerEmailBody.Execute(&buf, e); err != nil {
		return "", "", fmt.Errorf("render offer email: %w", err)
	}
	subject = "Your offer for " + e.Position
	if e.CompanyName != "" {
		subject += " at " + e.CompanyName
	}
	return subject, buf.String(), nil
}
