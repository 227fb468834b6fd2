// Package document renders the official documents of an accepted mutation
// and inspects the produced PDFs.
package document

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"

	"github.com/garyjia/mutation-workflow/internal/application/port"
	"github.com/garyjia/mutation-workflow/internal/domain/entity"
)

// Config holds the letterhead printed on every document
type Config struct {
	Organisation string
	Signatory    string
	City         string
}

// PDFRenderer implements port.DocumentRenderer with fpdf core fonts
type PDFRenderer struct {
	cfg         Config
	referential port.Referential
	now         func() time.Time
}

// NewPDFRenderer creates a renderer. referential may be nil, in which case
// codes are printed as-is.
func NewPDFRenderer(cfg Config, referential port.Referential) *PDFRenderer {
	if cfg.Organisation == "" {
		cfg.Organisation = "Direction des Ressources Humaines"
	}
	return &PDFRenderer{
		cfg:         cfg,
		referential: referential,
		now:         time.Now,
	}
}

// Render writes the PDF of docType for req to w
func (r *PDFRenderer) Render(ctx context.Context, docType entity.DocumentType, req *entity.Request, w io.Writer) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var body []string
	switch docType {
	case entity.DocumentOrdreMutation:
		body = r.ordreMutation(req)
	case entity.DocumentLettreNotification:
		body = r.lettreNotification(req)
	case entity.DocumentAttestationAdministrative:
		body = r.attestation(req)
	default:
		return fmt.Errorf("unknown document type: %s", docType)
	}

	issued := r.now().UTC()
	pdf := fpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.SetTitle(docType.Title(), true)
	pdf.SetAuthor(r.cfg.Organisation, true)
	pdf.SetCreator("mutationd", true)
	pdf.SetCreationDate(issued)
	pdf.SetModificationDate(issued)
	pdf.SetMargins(20, 20, 20)
	pdf.SetFooterFunc(func() {
		pdf.SetY(-15)
		pdf.SetFont("Helvetica", "I", 8)
		pdf.CellFormat(0, 10, tr(fmt.Sprintf("Demande %s - page %d", req.ID, pdf.PageNo())), "", 0, "C", false, 0, "")
	})
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 11)
	pdf.CellFormat(0, 6, tr(strings.ToUpper(r.cfg.Organisation)), "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 10)
	pdf.CellFormat(0, 6, tr(fmt.Sprintf("N° %s/%s", reference(req.ID), docCode(docType))), "", 1, "L", false, 0, "")
	pdf.Ln(12)

	pdf.SetFont("Helvetica", "B", 16)
	pdf.CellFormat(0, 10, tr(strings.ToUpper(docType.Title())), "", 1, "C", false, 0, "")
	pdf.Ln(8)

	pdf.SetFont("Helvetica", "", 11)
	for _, paragraph := range body {
		pdf.MultiCell(0, 6, tr(paragraph), "", "J", false)
		pdf.Ln(3)
	}

	pdf.Ln(10)
	place := formatDate(issued)
	if r.cfg.City != "" {
		place = r.cfg.City + ", le " + place
	}
	pdf.CellFormat(0, 6, tr(place), "", 1, "R", false, 0, "")
	if r.cfg.Signatory != "" {
		pdf.Ln(4)
		pdf.SetFont("Helvetica", "B", 11)
		pdf.CellFormat(0, 6, tr(r.cfg.Signatory), "", 1, "R", false, 0, "")
	}

	if err := pdf.Error(); err != nil {
		return fmt.Errorf("failed to build %s: %w", docType, err)
	}
	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("failed to write %s: %w", docType, err)
	}
	return nil
}

func (r *PDFRenderer) ordreMutation(req *entity.Request) []string {
	a := req.Applicant
	return []string{
		fmt.Sprintf("Vu la demande de mutation n° %s déposée par %s, matricule %s%s,",
			req.ID, a.FullName, a.Matricule, gradeSuffix(a.Grade)),
		"Vu les avis favorables de la hiérarchie, de la Direction de la Gestion des Ressources, de la Cellule de Vérification et de la Direction Nationale du Contrôle Financier,",
		fmt.Sprintf("Il est ordonné la mutation de %s, actuellement en service à %s (%s), %s.",
			a.FullName, r.location(a.Direction), a.Service, r.destination(req)),
		fmt.Sprintf("La présente mutation prend effet à compter du %s.", effectiveDate(req)),
	}
}

func (r *PDFRenderer) lettreNotification(req *entity.Request) []string {
	a := req.Applicant
	return []string{
		fmt.Sprintf("À l'attention de %s, matricule %s.", a.FullName, a.Matricule),
		fmt.Sprintf("Nous avons l'honneur de vous notifier l'acceptation de votre demande de mutation n° %s.", req.ID),
		fmt.Sprintf("Vous êtes affecté(e) %s à compter du %s.", r.destination(req), effectiveDate(req)),
		"Vous voudrez bien prendre toutes les dispositions nécessaires pour rejoindre votre nouveau poste à la date indiquée.",
	}
}

func (r *PDFRenderer) attestation(req *entity.Request) []string {
	a := req.Applicant
	return []string{
		fmt.Sprintf("Nous soussignés, %s, attestons que %s, matricule %s%s, en service à %s (%s),",
			r.cfg.Organisation, a.FullName, a.Matricule, gradeSuffix(a.Grade), r.location(a.Direction), a.Service),
		fmt.Sprintf("a obtenu sa mutation %s, avec effet au %s.", r.destination(req), effectiveDate(req)),
		"En foi de quoi, la présente attestation lui est délivrée pour servir et valoir ce que de droit.",
	}
}

func (r *PDFRenderer) destination(req *entity.Request) string {
	var parts []string
	if req.DesiredPost != "" {
		parts = append(parts, "au poste de "+r.post(req.DesiredPost))
	}
	if len(req.DesiredLocations) > 0 {
		parts = append(parts, "à "+r.location(req.DesiredLocations[0]))
	}
	if len(parts) == 0 {
		return "dans sa nouvelle affectation"
	}
	return strings.Join(parts, " ")
}

func (r *PDFRenderer) post(code string) string {
	if r.referential == nil {
		return code
	}
	return r.referential.PostLabel(code)
}

func (r *PDFRenderer) location(code string) string {
	if r.referential == nil {
		return code
	}
	return r.referential.LocationLabel(code)
}

func effectiveDate(req *entity.Request) string {
	if req.EffectiveDate != nil {
		return formatDate(*req.EffectiveDate)
	}
	return "la date de signature"
}

func gradeSuffix(grade string) string {
	if grade == "" {
		return ""
	}
	return ", grade " + grade
}

var months = [...]string{
	"janvier", "février", "mars", "avril", "mai", "juin",
	"juillet", "août", "septembre", "octobre", "novembre", "décembre",
}

func formatDate(t time.Time) string {
	return fmt.Sprintf("%d %s %d", t.Day(), months[t.Month()-1], t.Year())
}

func reference(id string) string {
	id = strings.ReplaceAll(id, "-", "")
	if len(id) > 8 {
		id = id[:8]
	}
	return strings.ToUpper(id)
}

func docCode(t entity.DocumentType) string {
	switch t {
	case entity.DocumentOrdreMutation:
		return "OM"
	case entity.DocumentLettreNotification:
		return "LN"
	case entity.DocumentAttestationAdministrative:
		return "AA"
	}
	return "DOC"
}
