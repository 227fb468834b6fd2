package document

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/mutation-workflow/internal/domain/entity"
	"github.com/garyjia/mutation-workflow/internal/domain/workflow"
)

type labels map[string]string

func (l labels) HasPost(code string) bool         { _, ok := l[code]; return ok }
func (l labels) HasLocation(code string) bool     { _, ok := l[code]; return ok }
func (l labels) PostLabel(code string) string     { return l[code] }
func (l labels) LocationLabel(code string) string { return l[code] }

func acceptedRequest() *entity.Request {
	effective := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	return &entity.Request{
		ID:     "3f2b8c9e-1111-2222-3333-444455556666",
		Type:   workflow.TypeSimple,
		Status: workflow.StateAcceptee,
		Applicant: entity.ApplicantSnapshot{
			FullName:  "Awa Diallo",
			Matricule: "M-1001",
			Direction: "DR_SUD",
			Service:   "Budget",
			Email:     "awa.diallo@example.org",
			Grade:     "A2",
		},
		DesiredPost:      "CHEF_SERVICE",
		DesiredLocations: []string{"DR_NORD"},
		EffectiveDate:    &effective,
	}
}

func TestPDFRenderer_RendersEveryAcceptanceDocument(t *testing.T) {
	r := NewPDFRenderer(Config{City: "Dakar", Signatory: "Le Directeur"}, labels{
		"CHEF_SERVICE": "Chef de service",
		"DR_NORD":      "Direction régionale Nord",
		"DR_SUD":       "Direction régionale Sud",
	})
	r.now = func() time.Time { return time.Date(2026, 6, 15, 10, 0, 0, 0, time.UTC) }
	inspector := NewFitzInspector()

	for _, docType := range entity.AcceptanceDocuments {
		t.Run(string(docType), func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, r.Render(context.Background(), docType, acceptedRequest(), &buf))

			assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("%PDF-")))
			pages, err := inspector.PageCount(buf.Bytes())
			require.NoError(t, err)
			assert.Equal(t, 1, pages)
		})
	}
}

func TestPDFRenderer_UnknownType(t *testing.T) {
	r := NewPDFRenderer(Config{}, nil)
	var buf bytes.Buffer

	err := r.Render(context.Background(), entity.DocumentType("CONTRAT"), acceptedRequest(), &buf)

	assert.Error(t, err)
	assert.Zero(t, buf.Len())
}

func TestPDFRenderer_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := NewPDFRenderer(Config{}, nil).Render(ctx, entity.DocumentOrdreMutation, acceptedRequest(), &bytes.Buffer{})

	assert.ErrorIs(t, err, context.Canceled)
}

func TestFitzInspector_RejectsGarbage(t *testing.T) {
	inspector := NewFitzInspector()

	_, err := inspector.PageCount(nil)
	assert.Error(t, err)

	_, err = inspector.PageCount([]byte("not a pdf"))
	assert.Error(t, err)
}

func TestFormatDate(t *testing.T) {
	assert.Equal(t, "1 août 2026", formatDate(time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, "3F2B8C9E", reference("3f2b8c9e-1111"))
}
