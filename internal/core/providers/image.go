// Copyright 2024 Google, LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package providers

import (
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"

	"golang.org/x/image/draw"
)

// CLIP image preprocessing constants.
const ClipImageSize = 224

var (
	clipMean = [3]float32{0.48145466, 0.4578275, 0.40821073}
	clipStd  = [3]float32{0.26862954, 0.26130258, 0.27577711}
)

// LoadImage decodes a JPEG or PNG file.
func LoadImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return img, nil
}

// ResizeAndCrop scales the shorter side to size and center-crops a size x size square.
func ResizeAndCrop(src image.Image, size int) *image.RGBA {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if w == 0 || h == 0 {
		return image.NewRGBA(image.Rect(0, 0, size, size))
	}
	scale := float64(size) / float64(min(w, h))
	nw := max(size, int(float64(w)*scale+0.5))
	nh := max(size, int(float64(h)*scale+0.5))

	scaled := image.NewRGBA(image.Rect(0, 0, nw, nh))
	draw.CatmullRom.Scale(scaled, scaled.Bounds(), src, b, draw.Over, nil)

	x0 := (nw - size) / 2
	y0 := (nh - size) / 2
	out := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.Draw(out, out.Bounds(), scaled, image.Pt(x0, y0), draw.Src)
	return out
}

// PixelValues converts a square RGBA image into normalized CHW floats and
// appends them to dst.
func PixelValues(dst []float32, img *image.RGBA) []float32 {
	size := img.Bounds().Dx()
	plane := size * size
	start := len(dst)
	dst = append(dst, make([]float32, 3*plane)...)
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			c := img.RGBAAt(x, y)
			i := y*size + x
			dst[start+i] = (float32(c.R)/255 - clipMean[0]) / clipStd[0]
			dst[start+plane+i] = (float32(c.G)/255 - clipMean[1]) / clipStd[1]
			dst[start+2*plane+i] = (float32(c.B)/255 - clipMean[2]) / clipStd[2]
		}
	}
	return dst
}
