package session

import dErrors "tqhub/pkg/domain-errors"

// Presentation is how the host UI should surface an error. The mapping from
// error code to presentation is pure and total: every code lands in exactly
// one category, decided by kind, never by message text.
type Presentation string

const (
	// PresentationField attaches the error to the relevant input.
	PresentationField Presentation = "field"
	// PresentationBanner renders a dismissible page-level notice.
	PresentationBanner Presentation = "banner"
	// PresentationRedirect sends the user back to the login surface.
	PresentationRedirect Presentation = "redirect"
)

// PresentationFor maps an error code to its presentation category.
func PresentationFor(code dErrors.Code) Presentation {
	switch code {
	case dErrors.CodeInvalidCredentials:
		return PresentationField
	case dErrors.CodeSessionExpired:
		return PresentationRedirect
	default:
		return PresentationBanner
	}
}
