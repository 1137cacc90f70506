package preview

import (
	"encoding/binary"
	"fmt"
	"image"

	xdraw "golang.org/x/image/draw"
)

// Wire format, big-endian: magic "PX", one version byte, one flags
// byte (bit0 = frame A present, bit1 = frame B present), then for each
// present frame u16 width, u16 height, u32 pixel byte count, raw RGBA.
const (
	wireVersion = 1
	headerSize  = 4

	flagFrameA = 0x01
	flagFrameB = 0x02
)

var wireMagic = [2]byte{'P', 'X'}

// Frame is one cropped, scaled preview raster.
type Frame struct {
	Width  int
	Height int
	Pixels []byte
}

// capture crops src to the target aspect and scales it into a fresh
// width x height raster.
func capture(src *image.RGBA, width, height int) *Frame {
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	sr := cropRect(src.Bounds(), width, height)
	xdraw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, sr, xdraw.Src, nil)
	return &Frame{Width: width, Height: height, Pixels: dst.Pix}
}

// EncodePair packs the two per-surface frames into one wire message.
// Either frame may be nil when that surface failed to capture.
func EncodePair(a, b *Frame) []byte {
	size := headerSize
	var flags byte
	if a != nil {
		flags |= flagFrameA
		size += 8 + len(a.Pixels)
	}
	if b != nil {
		flags |= flagFrameB
		size += 8 + len(b.Pixels)
	}

	buf := make([]byte, 0, size)
	buf = append(buf, wireMagic[0], wireMagic[1], wireVersion, flags)
	for _, f := range []*Frame{a, b} {
		if f == nil {
			continue
		}
		buf = binary.BigEndian.AppendUint16(buf, uint16(f.Width))
		buf = binary.BigEndian.AppendUint16(buf, uint16(f.Height))
		buf = binary.BigEndian.AppendUint32(buf, uint32(len(f.Pixels)))
		buf = append(buf, f.Pixels...)
	}
	return buf
}

// DecodePair unpacks a wire message back into its frames.
func DecodePair(data []byte) (a, b *Frame, err error) {
	if len(data) < headerSize || data[0] != wireMagic[0] || data[1] != wireMagic[1] {
		return nil, nil, fmt.Errorf("preview: bad magic")
	}
	if data[2] != wireVersion {
		return nil, nil, fmt.Errorf("preview: unsupported version %d", data[2])
	}
	flags := data[3]
	rest := data[headerSize:]

	read := func() (*Frame, error) {
		if len(rest) < 8 {
			return nil, fmt.Errorf("preview: truncated frame header")
		}
		w := int(binary.BigEndian.Uint16(rest[0:2]))
		h := int(binary.BigEndian.Uint16(rest[2:4]))
		n := int(binary.BigEndian.Uint32(rest[4:8]))
		rest = rest[8:]
		if len(rest) < n {
			return nil, fmt.Errorf("preview: truncated pixel data")
		}
		f := &Frame{Width: w, Height: h, Pixels: rest[:n]}
		rest = rest[n:]
		return f, nil
	}

	if flags&flagFrameA != 0 {
		if a, err = read(); err != nil {
			return nil, nil, err
		}
	}
	if flags&flagFrameB != 0 {
		if b, err = read(); err != nil {
			return nil, nil, err
		}
	}
	return a, b, nil
}
