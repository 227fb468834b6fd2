package effects

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	"github.com/garyjia/mutation-workflow/internal/domain/entity"
	"github.com/garyjia/mutation-workflow/internal/domain/workflow"
)

var bodyTemplate = template.Must(template.New("body").Funcs(template.FuncMap{
	"date": func(r *entity.Request) string {
		if r.EffectiveDate == nil {
			return ""
		}
		return r.EffectiveDate.Format("02/01/2006")
	},
}).Parse(`Bonjour {{.Request.Applicant.FullName}},

{{.Lead}}
{{if .Reasons}}
Motifs :
{{range .Reasons}}  - {{.}}
{{end}}{{end}}{{if .Comment}}
Observation : {{.Comment}}
{{end}}{{if .Request.EffectiveDate}}
Date d'effet : {{date .Request}}
{{end}}{{if .Documents}}
Documents joints :
{{range .Documents}}  - {{.}}
{{end}}{{end}}
Référence de la demande : {{.Request.ID}}

Direction des ressources humaines
`))

type messageData struct {
	Request   *entity.Request
	Lead      string
	Reasons   []string
	Comment   string
	Documents []string
}

// subjectFor returns the subject of the notification sent for status
func subjectFor(status workflow.State) string {
	switch status {
	case workflow.StateAcceptee:
		return "Votre demande de mutation a été acceptée"
	case workflow.StateIneligible:
		return "Votre demande de mutation n'est pas recevable"
	}
	return "Votre demande de mutation a été rejetée"
}

func leadFor(status workflow.State) string {
	switch status {
	case workflow.StateAcceptee:
		return "Nous avons le plaisir de vous informer que votre demande de mutation a été acceptée."
	case workflow.StateIneligible:
		return "Votre demande de mutation ne remplit pas les conditions de recevabilité."
	case workflow.StateRejeteeHierarchique:
		return "Votre demande de mutation a été rejetée par votre hiérarchie."
	case workflow.StateAvisDGRDefavorable:
		return "La direction générale a émis un avis défavorable sur votre demande de mutation."
	case workflow.StateRejeteeCVR:
		return "Votre demande de mutation a été rejetée par la commission de vérification."
	}
	return "Votre demande de mutation a été rejetée."
}

// composeMessage builds the applicant notification. Attachments are added
// by the caller.
func composeMessage(req *entity.Request, comment string, docs []*entity.DocumentArtifact) (subject, body string, err error) {
	data := messageData{
		Request: req,
		Lead:    leadFor(req.Status),
		Comment: strings.TrimSpace(comment),
	}
	if req.Status == workflow.StateIneligible {
		data.Reasons = req.IneligibilityReasons
	}
	for _, d := range docs {
		data.Documents = append(data.Documents, d.Type.Title())
	}

	var buf bytes.Buffer
	if err := bodyTemplate.Execute(&buf, data); err != nil {
		return "", "", fmt.Errorf("failed to render notification body: %w", err)
	}
	return subjectFor(req.Status), buf.String(), nil
}

// composeLateDelivery builds the message carrying documents that were
// generated after the acceptance notification went out
func composeLateDelivery(req *entity.Request, docs []*entity.DocumentArtifact) (subject, body string, err error) {
	data := messageData{
		Request: req,
		Lead:    "Veuillez trouver ci-joint un document relatif à votre mutation qui n'avait pas pu vous être transmis.",
	}
	titles := make([]string, 0, len(docs))
	for _, d := range docs {
		titles = append(titles, d.Type.Title())
	}
	data.Documents = titles

	var buf bytes.Buffer
	if err := bodyTemplate.Execute(&buf, data); err != nil {
		return "", "", fmt.Errorf("failed to render notification body: %w", err)
	}
	return "Document complémentaire : " + strings.Join(titles, ", "), buf.String(), nil
}

// DocumentPath is the storage path of a generated document
func DocumentPath(requestID string, docType entity.DocumentType) string {
	return fmt.Sprintf("requests/%s/%s.pdf", requestID, strings.ToLower(string(docType)))
}
