// pkg/imaging/normalize.go
package imaging

import (
	"bytes"
	"fmt"
	"image"

	img "github.com/disintegration/imaging"

	"prediagnostic-back/internal/apperrors"
)

// MinDimension is the smallest accepted width or height in pixels.
const MinDimension = 50

// Tensor is a 4-dimensional float32 array in row-major
// [batch][y][x][channel] order, ready for the model's forward pass.
type Tensor struct {
	Shape [4]int
	Data  []float32
}

// Normalizer converts arbitrary uploaded image bytes into a fixed-shape
// tensor. The transformation is pure: the same input bytes always produce
// bit-identical output.
type Normalizer struct {
	width   int
	height  int
	quality int
}

func NewNormalizer(width, height, jpegQuality int) *Normalizer {
	return &Normalizer{width: width, height: height, quality: jpegQuality}
}

// Normalize decodes, validates, canonicalizes and resizes raw image bytes,
// then scales pixel values to [0,1] and adds a leading batch dimension.
// The result has shape [1, height, width, 3]. No partial tensor is ever
// returned: any failure surfaces as a typed error.
func (n *Normalizer) Normalize(raw []byte) (*Tensor, error) {
	src, err := img.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrDecode, err)
	}

	if err := validate(src); err != nil {
		return nil, err
	}

	canonical, err := n.reencodeJPEG(src)
	if err != nil {
		return nil, err
	}

	resized := img.Resize(canonical, n.width, n.height, img.Lanczos)

	data := make([]float32, n.height*n.width*3)
	i := 0
	for y := 0; y < n.height; y++ {
		row := resized.Pix[y*resized.Stride : y*resized.Stride+n.width*4]
		for x := 0; x < n.width; x++ {
			p := row[x*4 : x*4+3]
			data[i] = float32(p[0]) / 255
			data[i+1] = float32(p[1]) / 255
			data[i+2] = float32(p[2]) / 255
			i += 3
		}
	}

	return &Tensor{
		Shape: [4]int{1, n.height, n.width, 3},
		Data:  data,
	}, nil
}

func validate(src image.Image) error {
	bounds := src.Bounds()
	if bounds.Dx() < MinDimension || bounds.Dy() < MinDimension {
		return fmt.Errorf("%w: image %dx%d is below the %dpx minimum",
			apperrors.ErrValidation, bounds.Dx(), bounds.Dy(), MinDimension)
	}

	switch src.(type) {
	case *image.Gray, *image.Gray16,
		*image.RGBA, *image.NRGBA, *image.RGBA64, *image.NRGBA64,
		*image.Paletted, *image.YCbCr:
		return nil
	default:
		return fmt.Errorf("%w: unsupported color mode %T", apperrors.ErrValidation, src)
	}
}

// reencodeJPEG flattens exotic encodings to a canonical 3-channel JPEG at the
// configured quality before resizing. Grayscale input ends up with the value
// replicated across all three channels; alpha and palette data are dropped.
func (n *Normalizer) reencodeJPEG(src image.Image) (image.Image, error) {
	var buf bytes.Buffer
	if err := img.Encode(&buf, src, img.JPEG, img.JPEGQuality(n.quality)); err != nil {
		return nil, fmt.Errorf("%w: canonical re-encode: %v", apperrors.ErrDecode, err)
	}

	canonical, err := img.Decode(&buf)
	if err != nil {
		return nil, fmt.Errorf("%w: canonical re-decode: %v", apperrors.ErrDecode, err)
	}
	return canonical, nil
}
