package transfer

import (
	"os"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/yarkm13/dropsync/internal/domain"
)

// Verifier inspects a fully written local file before it is committed.
type Verifier interface {
	Verify(path string) error
}

// PDFVerifier rejects files pdfcpu cannot parse as a PDF.
type PDFVerifier struct {
	conf *model.Configuration
}

func NewPDFVerifier() *PDFVerifier {
	api.DisableConfigDir()
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return &PDFVerifier{conf: conf}
}

func (v *PDFVerifier) Verify(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return localError("open", path, err)
	}
	defer f.Close()

	if err := api.Validate(f, v.conf); err != nil {
		return domain.NewOpError(domain.ErrProtocol, "validate pdf", path, err)
	}
	return nil
}
