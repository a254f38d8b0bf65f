package extract

import (
	"bytes"
	"context"
	"os"
	"os/exec"

	"github.com/rotisserie/eris"

	"github.com/sells-group/shiftscan/internal/model"
)

// Tesseract runs the local tesseract CLI. Its payload is plain OCR text.
type Tesseract struct {
	binPath   string
	languages string
}

// NewTesseract creates a Tesseract extractor. Empty binPath uses "tesseract"
// from PATH; empty languages uses "jpn+eng".
func NewTesseract(binPath, languages string) *Tesseract {
	if binPath == "" {
		binPath = "tesseract"
	}
	if languages == "" {
		languages = "jpn+eng"
	}
	return &Tesseract{binPath: binPath, languages: languages}
}

// ID implements Extractor.
func (t *Tesseract) ID() model.ProviderID { return model.ProviderTesseract }

// Extract writes the image to a temp file and runs
// `tesseract <file> stdout -l <languages>`.
func (t *Tesseract) Extract(ctx context.Context, img model.Image, hints model.Hints) (*model.RawPayload, error) {
	if len(img.Data) == 0 {
		return nil, eris.New("tesseract: empty image")
	}

	f, err := os.CreateTemp("", "shiftscan-*.img")
	if err != nil {
		return nil, eris.Wrap(err, "tesseract: create temp file")
	}
	defer os.Remove(f.Name()) //nolint:errcheck

	if _, err := f.Write(img.Data); err != nil {
		f.Close() //nolint:errcheck,gosec
		return nil, eris.Wrap(err, "tesseract: write temp file")
	}
	if err := f.Close(); err != nil {
		return nil, eris.Wrap(err, "tesseract: close temp file")
	}

	cmd := exec.CommandContext(ctx, t.binPath, f.Name(), "stdout", "-l", t.languages) //nolint:gosec

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, eris.Wrapf(err, "tesseract: run failed: %s", stderr.String())
	}

	return &model.RawPayload{
		Provider:      model.ProviderTesseract,
		Kind:          model.PayloadText,
		Body:          stdout.String(),
		ReferenceYear: hints.ReferenceYear,
	}, nil
}
