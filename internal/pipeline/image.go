package pipeline

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-playground/validator/v10"
	"github.com/rotisserie/eris"

	"github.com/sells-group/shiftscan/internal/model"
)

// DefaultMaxImageBytes caps uploaded images when unconfigured.
const DefaultMaxImageBytes int64 = 10 << 20

// CheckImage verifies that img holds a supported image within maxBytes. The
// detected media type replaces whatever the caller declared.
func CheckImage(img model.Image, maxBytes int64) (model.Image, error) {
	if len(img.Data) == 0 {
		return img, eris.Wrap(ErrInvalid, "image is empty")
	}
	if maxBytes > 0 && int64(len(img.Data)) > maxBytes {
		return img, eris.Wrapf(ErrInvalid, "image is %d bytes, limit is %d", len(img.Data), maxBytes)
	}

	mt := mimetype.Detect(img.Data)
	if !strings.HasPrefix(mt.String(), "image/") {
		return img, eris.Wrapf(ErrInvalid, "unsupported media type %s", mt.String())
	}
	img.MediaType = mt.String()
	return img, nil
}

// ReadImage reads at most maxBytes+1 bytes from r without inspecting them.
// The extra byte lets Submit reject oversized uploads instead of silently
// processing a truncated image.
func ReadImage(r io.Reader, name string, maxBytes int64) (model.Image, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxImageBytes
	}
	data, err := io.ReadAll(io.LimitReader(r, maxBytes+1))
	if err != nil {
		return model.Image{}, eris.Wrap(err, "pipeline: read image")
	}
	return model.Image{Name: name, Data: data}, nil
}

func formatValidation(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
	}
	return strings.Join(parts, "; ")
}
