package cpu

import (
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/image/bmp"
)

// Pixel colors: a set bit in the screen map is black on a white background.
var (
	pixelOn  = [4]byte{0x00, 0x00, 0x00, 0xFF}
	pixelOff = [4]byte{0xFF, 0xFF, 0xFF, 0xFF}
)

// GetFramebufferRGBA decodes the screen map into a 512×256 RGBA8888 byte
// slice. Each word covers 16 pixels of a row, least significant bit
// leftmost.
func (c *CPU) GetFramebufferRGBA() []byte {
	pixels := make([]byte, ScreenWidth*ScreenHeight*4)
	for i := 0; i < ScreenWords; i++ {
		word := c.RAM[ScreenBase+i]
		for bit := 0; bit < 16; bit++ {
			color := pixelOff
			if word&(1<<bit) != 0 {
				color = pixelOn
			}
			copy(pixels[(i*16+bit)*4:], color[:])
		}
	}
	return pixels
}

// GetFramebufferImage returns the screen map as an *image.RGBA.
func (c *CPU) GetFramebufferImage() *image.RGBA {
	return &image.RGBA{
		Pix:    c.GetFramebufferRGBA(),
		Stride: ScreenWidth * 4,
		Rect:   image.Rect(0, 0, ScreenWidth, ScreenHeight),
	}
}

// SaveScreenshot writes the screen to filename as BMP when the name ends in
// .bmp and as PNG otherwise.
func (c *CPU) SaveScreenshot(filename string) (err error) {
	img := c.GetFramebufferImage()
	f, err := os.Create(filename)
	if err != nil {
		return errors.Wrap(err, "screenshot")
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = errors.Wrap(cerr, "screenshot")
		}
	}()

	if strings.EqualFold(filepath.Ext(filename), ".bmp") {
		return errors.Wrap(bmp.Encode(f, img), "encode bmp")
	}
	return errors.Wrap(png.Encode(f, img), "encode png")
}
