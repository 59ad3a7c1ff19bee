// Package imageproc turns uploaded image bytes into the float tensor the
// classifier was trained on.
//
// The recipe (RGB, bicubic resize to 128x128, scale by 1/255, NHWC with a
// leading batch of 1) is a compatibility contract with the model artifact.
package imageproc

import (
	"bytes"
	"errors"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
	"github.com/nfnt/resize"

	// Decoders beyond the ones imaging registers.
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/Brownie44l1/veggie-api/internal/config"
)

// MaxPixels bounds the declared dimensions of an upload so a small file
// cannot expand into an enormous pixel buffer.
const MaxPixels = 64 << 20

// ErrTooManyPixels is returned when the image header declares more than
// MaxPixels pixels.
var ErrTooManyPixels = errors.New("image dimensions too large")

// Tensor is a dense float32 tensor in row-major order.
type Tensor struct {
	Shape []int64
	Data  []float32
}

// InputShape is the shape every Tensor produced by this package has.
func InputShape() []int64 {
	return []int64{1, config.ImageSize, config.ImageSize, config.Channels}
}

// Decode parses raw image bytes, applying any EXIF orientation. The returned
// format is the registered decoder name ("jpeg", "png", ...).
func Decode(raw []byte) (image.Image, string, error) {
	if len(raw) == 0 {
		return nil, "", errors.New("empty image data")
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		return nil, "", fmt.Errorf("decode config: %w", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, "", fmt.Errorf("invalid dimensions %dx%d", cfg.Width, cfg.Height)
	}
	if int64(cfg.Width)*int64(cfg.Height) > MaxPixels {
		return nil, "", fmt.Errorf("%w: %dx%d", ErrTooManyPixels, cfg.Width, cfg.Height)
	}

	img, err := imaging.Decode(bytes.NewReader(raw), imaging.AutoOrientation(true))
	if err != nil {
		return nil, "", fmt.Errorf("decode %s: %w", format, err)
	}
	return img, format, nil
}

// ToTensor converts img to the model input: RGB, resized to
// ImageSize x ImageSize, values in [0,1], shape [1, H, W, 3].
func ToTensor(img image.Image) *Tensor {
	size := config.ImageSize

	// Normalizes gray, paletted, YCbCr and 16-bit sources to 8-bit NRGBA.
	rgb := imaging.Clone(img)
	dropAlpha(rgb)

	resized := imaging.Clone(resize.Resize(uint(size), uint(size), rgb, resize.Bicubic))

	data := make([]float32, size*size*config.Channels)
	i := 0
	for y := 0; y < size; y++ {
		row := resized.Pix[y*resized.Stride:]
		for x := 0; x < size; x++ {
			px := row[x*4 : x*4+3]
			data[i] = float32(px[0]) / 255.0
			data[i+1] = float32(px[1]) / 255.0
			data[i+2] = float32(px[2]) / 255.0
			i += 3
		}
	}

	return &Tensor{Shape: InputShape(), Data: data}
}

// Preprocess decodes raw and converts it with ToTensor.
func Preprocess(raw []byte) (*Tensor, error) {
	img, _, err := Decode(raw)
	if err != nil {
		return nil, err
	}
	return ToTensor(img), nil
}

// dropAlpha marks every pixel opaque without blending, keeping the stored
// color channels as they are.
func dropAlpha(img *image.NRGBA) {
	for y := 0; y < img.Rect.Dy(); y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+img.Rect.Dx()*4]
		for i := 3; i < len(row); i += 4 {
			row[i] = 0xff
		}
	}
}
