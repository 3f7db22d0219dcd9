package shared

import "github.com/google/uuid"

// GeneratedDocument is the outcome of a generation pipeline: the rendered PDF
// plus the persisted document's identity. PDFCached reports whether the
// artifact upload and back-reference update succeeded; a false value never
// fails the request, the document stays usable and regenerable.
type GeneratedDocument struct {
	ID        uuid.UUID
	Number    string
	Filename  string
	PDF       []byte
	PDFCached bool
}
