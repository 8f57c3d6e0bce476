// Copyright 2019 Lanikai Labs. All rights reserved.

// Package color implements the pixel format conversions used by the
// broadcast pipeline: BGRA (as reported by a screen grabber) to packed RGB,
// RGB to planar YUV 4:2:0 for the H.264 encoder, and planar YUV 4:2:0 back
// to packed ARGB for the window surface.
package color

// clampByte clamps v to [0, 255] and truncates to a byte.
func clampByte(v int32) byte {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return byte(v)
}

// BGRAToRGB converts a BGRA framebuffer of the given width/height/stride
// (stride in bytes, which may exceed 4*width due to driver padding) into a
// tightly packed RGB buffer of length 3*width*height.
//
// idx is computed as y*stride + 4*x, never 4*width*y, since the source
// stride may be padded.
func BGRAToRGB(bgra []byte, width, height, stride int) []byte {
	rgb := make([]byte, 3*width*height)
	for y := 0; y < height; y++ {
		row := y * stride
		out := y * width * 3
		for x := 0; x < width; x++ {
			idx := row + 4*x
			if idx+2 >= len(bgra) {
				continue
			}
			o := out + x*3
			rgb[o] = bgra[idx+2]   // R
			rgb[o+1] = bgra[idx+1] // G
			rgb[o+2] = bgra[idx]   // B
		}
	}
	return rgb
}

// RGBToYUV420 converts a packed RGB buffer to planar YUV 4:2:0 using the
// BT.601 coefficients: Y per pixel, U and V once per 2x2 block from the
// block's mean RGB. The output layout is Y (w*h), then U (w*h/4), then V
// (w*h/4), tightly packed.
func RGBToYUV420(rgb []byte, width, height int) []byte {
	ySize := width * height
	uvSize := ySize / 4
	yuv := make([]byte, ySize+2*uvSize)

	yPlane := yuv[:ySize]
	uPlane := yuv[ySize : ySize+uvSize]
	vPlane := yuv[ySize+uvSize:]

	for j := 0; j < height; j++ {
		for i := 0; i < width; i++ {
			rgbIdx := (j*width + i) * 3
			if rgbIdx+2 >= len(rgb) {
				continue
			}
			r := int32(rgb[rgbIdx])
			g := int32(rgb[rgbIdx+1])
			b := int32(rgb[rgbIdx+2])

			y := ((66*r + 129*g + 25*b + 128) >> 8) + 16
			yPlane[j*width+i] = clampByte(y)

			if j%2 == 0 && i%2 == 0 {
				var sr, sg, sb, n int32
				for dj := 0; dj < 2 && j+dj < height; dj++ {
					for di := 0; di < 2 && i+di < width; di++ {
						k := ((j+dj)*width + i + di) * 3
						if k+2 < len(rgb) {
							sr, sg, sb, n = sr+int32(rgb[k]), sg+int32(rgb[k+1]), sb+int32(rgb[k+2]), n+1
						}
					}
				}
				mr, mg, mb := sr/n, sg/n, sb/n
				u := ((-38*mr - 74*mg + 112*mb + 128) >> 8) + 128
				v := ((112*mr - 94*mg - 18*mb + 128) >> 8) + 128
				uvIdx := (j/2)*(width/2) + (i / 2)
				if uvIdx < len(uPlane) {
					uPlane[uvIdx] = clampByte(u)
					vPlane[uvIdx] = clampByte(v)
				}
			}
		}
	}

	return yuv
}

// YUV420ToARGB converts planar YUV 4:2:0 to packed 32-bit ARGB
// (0xFF000000 | R<<16 | G<<8 | B), one uint32 per pixel, row-major.
func YUV420ToARGB(yuv []byte, width, height int) []uint32 {
	ySize := width * height
	uvSize := ySize / 4

	yPlane := yuv[:ySize]
	uPlane := yuv[ySize : ySize+uvSize]
	vPlane := yuv[ySize+uvSize:]

	argb := make([]uint32, ySize)

	for j := 0; j < height; j++ {
		for i := 0; i < width; i++ {
			yIdx := j*width + i
			uvIdx := (j/2)*(width/2) + (i / 2)

			y := int32(yPlane[yIdx])
			u := int32(uPlane[uvIdx]) - 128
			v := int32(vPlane[uvIdx]) - 128

			r := y + ((351 * v) >> 8)
			g := y - ((179*v + 86*u) >> 8)
			b := y + ((443 * u) >> 8)

			argb[yIdx] = 0xFF000000 |
				uint32(clampByte(r))<<16 |
				uint32(clampByte(g))<<8 |
				uint32(clampByte(b))
		}
	}

	return argb
}

// RGBToARGB packs a tightly-packed RGB buffer into 32-bit ARGB
// (0xFF000000 | R<<16 | G<<8 | B), one uint32 per pixel, row-major. Used on
// the decode side, where the decoder's output is already RGB rather than
// planar YUV.
func RGBToARGB(rgb []byte, width, height int) []uint32 {
	argb := make([]uint32, width*height)
	for i := range argb {
		o := i * 3
		if o+2 >= len(rgb) {
			break
		}
		argb[i] = 0xFF000000 |
			uint32(rgb[o])<<16 |
			uint32(rgb[o+1])<<8 |
			uint32(rgb[o+2])
	}
	return argb
}
