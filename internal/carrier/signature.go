package carrier

import (
	"errors"
	"net/http"
	"strings"

	twilioclient "github.com/twilio/twilio-go/client"
)

const signatureHeader = "X-Twilio-Signature"

var (
	ErrMissingSignature = errors.New("missing carrier signature")
	ErrBadSignature     = errors.New("carrier signature mismatch")
)

// SignatureValidator checks webhook signatures against the URL the carrier
// was configured with, i.e. the public URL plus the request path and query.
type SignatureValidator struct {
	validator twilioclient.RequestValidator
	publicURL string
}

// NewSignatureValidator creates a validator for requests addressed to publicURL
func NewSignatureValidator(authToken, publicURL string) *SignatureValidator {
	return &SignatureValidator{
		validator: twilioclient.NewRequestValidator(authToken),
		publicURL: strings.TrimRight(publicURL, "/"),
	}
}

// Verify checks the signature of a request whose form is already parsed.
// Webhook parameters are single-valued.
func (v *SignatureValidator) Verify(r *http.Request) error {
	got := r.Header.Get(signatureHeader)
	if got == "" {
		return ErrMissingSignature
	}

	params := make(map[string]string, len(r.PostForm))
	for k := range r.PostForm {
		params[k] = r.PostForm.Get(k)
	}
	if !v.validator.Validate(v.publicURL+r.URL.RequestURI(), params, got) {
		return ErrBadSignature
	}
	return nil
}
