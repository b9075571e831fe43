// Copyright (C) 2020 Markus L. Noga
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.


// Conversion between image files and RGBA pixel buffers, for the command line and server.
package imageio

import (
	"bufio"
	"fmt"
	"image"
	"image/draw"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/mlnoga/edgelab/internal/pixels"
)

const DefaultJPEGQuality=95

// Output formats, by canonical suffix
const (
	FormatPNG  = "png"
	FormatJPEG = "jpeg"
	FormatTIFF = "tiff"
	FormatBMP  = "bmp"
	FormatGIF  = "gif"
)

var suffixFormats=map[string]string{
	".png":  FormatPNG,
	".jpg":  FormatJPEG,
	".jpeg": FormatJPEG,
	".tif":  FormatTIFF,
	".tiff": FormatTIFF,
	".bmp":  FormatBMP,
	".gif":  FormatGIF,
}

// Determines the output format from the file name suffix, ignoring case
func FormatFromFileName(fileName string) (string, error) {
	if f, ok:=suffixFormats[strings.ToLower(filepath.Ext(fileName))]; ok { return f, nil }
	return "", fmt.Errorf("%w: unknown image suffix in %s", pixels.ErrInvalidConfiguration, fileName)
}

// Converts any image into a non-premultiplied RGBA buffer
func FromImage(img image.Image) *pixels.Buffer {
	bounds:=img.Bounds()
	nrgba, ok:=img.(*image.NRGBA)
	// sub-images of the top rows share the parent's longer Pix slice
	if !ok || nrgba.Stride!=bounds.Dx()*pixels.Channels || bounds.Min!=(image.Point{}) ||
		len(nrgba.Pix)!=bounds.Dx()*bounds.Dy()*pixels.Channels {
		nrgba=image.NewNRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
		draw.Draw(nrgba, nrgba.Bounds(), img, bounds.Min, draw.Src)
	}
	return &pixels.Buffer{Width: bounds.Dx(), Height: bounds.Dy(), Pix: nrgba.Pix}
}

// Wraps a buffer as an image without copying
func ToImage(b *pixels.Buffer) *image.NRGBA {
	return &image.NRGBA{Pix: b.Pix, Stride: b.Width*pixels.Channels, Rect: image.Rect(0, 0, b.Width, b.Height)}
}

// Decodes a PNG, JPEG, GIF, TIFF, BMP or WebP stream. Returns the buffer and the format name
func Decode(r io.Reader) (*pixels.Buffer, string, error) {
	img, format, err:=image.Decode(r)
	if err!=nil { return nil, "", err }
	b:=FromImage(img)
	if err:=b.Validate(); err!=nil { return nil, format, err }
	return b, format, nil
}

// Encodes a buffer in the given format. Quality applies to JPEG only
func Encode(w io.Writer, b *pixels.Buffer, format string, quality int) error {
	if err:=b.Validate(); err!=nil { return err }
	img:=ToImage(b)
	switch format {
	case FormatPNG:
		return png.Encode(w, img)
	case FormatJPEG:
		if quality<=0 || quality>100 { quality=DefaultJPEGQuality }
		return jpeg.Encode(w, img, &jpeg.Options{Quality: quality})
	case FormatTIFF:
		return tiff.Encode(w, img, &tiff.Options{Compression: tiff.Deflate, Predictor: true})
	case FormatBMP:
		return bmp.Encode(w, img)
	case FormatGIF:
		return gif.Encode(w, img, nil)
	}
	return fmt.Errorf("%w: unknown image format %q", pixels.ErrInvalidConfiguration, format)
}

// Reads and decodes an image file
func ReadFile(fileName string) (*pixels.Buffer, error) {
	file, err:=os.Open(fileName)
	if err!=nil { return nil, err }
	defer file.Close()

	b, _, err:=Decode(bufio.NewReader(file))
	if err!=nil { return nil, fmt.Errorf("decoding %s: %w", fileName, err) }
	return b, nil
}

// Encodes a buffer into a file, choosing the format from the file name suffix
func WriteFile(fileName string, b *pixels.Buffer, quality int) error {
	format, err:=FormatFromFileName(fileName)
	if err!=nil { return err }

	file, err:=os.Create(fileName)
	if err!=nil { return err }
	defer file.Close()

	writer:=bufio.NewWriter(file)
	if err=Encode(writer, b, format, quality); err!=nil { return err }
	if err=writer.Flush(); err!=nil { return err }
	return file.Close()
}
