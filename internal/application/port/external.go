package port

import (
	"context"
	"io"

	"github.com/garyjia/mutation-workflow/internal/domain/entity"
)

// DocumentRenderer produces the PDF body of an official document
type DocumentRenderer interface {
	Render(ctx context.Context, docType entity.DocumentType, req *entity.Request, w io.Writer) error
}

// PDFInspector checks a rendered PDF and reports its page count
type PDFInspector interface {
	PageCount(content []byte) (int, error)
}

// Attachment is a file sent along with a notification
type Attachment struct {
	Name    string
	Content []byte
}

// Message is an applicant notification
type Message struct {
	To          string
	Name        string
	Subject     string
	Body        string
	Attachments []Attachment
}

// Mailer delivers notifications over one channel
type Mailer interface {
	Channel() string
	Send(ctx context.Context, msg *Message) error
}

// Referential exposes the organisation's posts and locations
type Referential interface {
	HasPost(code string) bool
	HasLocation(code string) bool
	PostLabel(code string) string
	LocationLabel(code string) string
}
