package strategy

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"
)

// Kind selects an image transform.
type Kind int

const (
	Identity Kind = iota
	BrightnessContrast
	RegionContrast
	Blur
	Mirror
	Rotate180
)

func (k Kind) String() string {
	switch k {
	case Identity:
		return "identity"
	case BrightnessContrast:
		return "brightness_contrast"
	case RegionContrast:
		return "region_contrast"
	case Blur:
		return "blur"
	case Mirror:
		return "mirror"
	case Rotate180:
		return "rotate180"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// FrameRegion names the horizontal band a RegionContrast step touches.
type FrameRegion string

const (
	LowerHalf FrameRegion = "lower"
	UpperHalf FrameRegion = "upper"
	FullFrame FrameRegion = "full"
)

func (r FrameRegion) rect(width, height int) image.Rectangle {
	switch r {
	case LowerHalf:
		return image.Rect(0, height/2, width, height)
	case UpperHalf:
		return image.Rect(0, 0, width, height/2)
	}
	return image.Rect(0, 0, width, height)
}

// Transform is one image pre-processing step. Only the fields used by Kind
// are meaningful.
type Transform struct {
	Kind Kind

	// BrightnessContrast: dst = Alpha*src + Beta
	Alpha float64
	Beta  float64

	// RegionContrast: CLAHE on the luma channel of Region
	Region    FrameRegion
	ClipLimit float64

	// Blur: odd Gaussian kernel size
	Kernel int
}

// apply writes the transformed src to dst. src is never modified.
func (t Transform) apply(src gocv.Mat, dst *gocv.Mat) error {
	switch t.Kind {
	case Identity:
		src.CopyTo(dst)
	case BrightnessContrast:
		src.ConvertToWithParams(dst, src.Type(), float32(t.Alpha), float32(t.Beta))
	case RegionContrast:
		return regionContrast(src, dst, t.Region, t.ClipLimit)
	case Blur:
		k := t.Kernel
		if k < 3 {
			k = 3
		}
		if k%2 == 0 {
			k++
		}
		gocv.GaussianBlur(src, dst, image.Pt(k, k), 0, 0, gocv.BorderDefault)
	case Mirror:
		gocv.Flip(src, dst, 1)
	case Rotate180:
		gocv.Rotate(src, dst, gocv.Rotate180Clockwise)
	default:
		return fmt.Errorf("unknown transform %s", t.Kind)
	}
	return nil
}

// regionContrast equalizes local contrast inside one band of the frame and
// leaves the rest untouched.
func regionContrast(src gocv.Mat, dst *gocv.Mat, region FrameRegion, clipLimit float64) error {
	if clipLimit <= 0 {
		clipLimit = 2.0
	}
	src.CopyTo(dst)

	rect := region.rect(dst.Cols(), dst.Rows())
	if rect.Empty() {
		return nil
	}
	roi := dst.Region(rect)
	defer roi.Close()

	clahe := gocv.NewCLAHEWithParams(clipLimit, image.Pt(8, 8))
	defer clahe.Close()

	if roi.Channels() == 1 {
		out := gocv.NewMat()
		defer out.Close()
		clahe.Apply(roi, &out)
		out.CopyTo(&roi)
		return nil
	}
	if roi.Channels() != 3 {
		return fmt.Errorf("region contrast: unsupported channel count %d", roi.Channels())
	}

	ycc := gocv.NewMat()
	defer ycc.Close()
	gocv.CvtColor(roi, &ycc, gocv.ColorBGRToYCrCb)

	channels := gocv.Split(ycc)
	defer func() {
		for _, c := range channels {
			c.Close()
		}
	}()

	luma := gocv.NewMat()
	defer luma.Close()
	clahe.Apply(channels[0], &luma)
	luma.CopyTo(&channels[0])
	gocv.Merge(channels, &ycc)

	bgr := gocv.NewMat()
	defer bgr.Close()
	gocv.CvtColor(ycc, &bgr, gocv.ColorYCrCbToBGR)
	bgr.CopyTo(&roi)

	return nil
}
