package facematch

// Face size floor: faces smaller than this are too blurry to anchor
// similarity search and score near zero quality.
const (
	MinFaceWidthPx  = 35
	MinFaceWidthRel = 0.01
)

// QualityScore combines detection confidence with face size into a 0-1
// quality score used for prototype ranking. bbox is [x1, y1, x2, y2] in
// pixels, imageWidth the width of the owning image (0 when unknown).
func QualityScore(detScore float64, bbox []float64, imageWidth int) float64 {
	if detScore < 0 {
		detScore = 0
	}
	if detScore > 1 {
		detScore = 1
	}
	if len(bbox) != 4 {
		return detScore * 0.5
	}

	faceWidth := bbox[2] - bbox[0]
	if faceWidth < MinFaceWidthPx {
		return detScore * 0.1
	}
	if imageWidth > 0 && faceWidth/float64(imageWidth) < MinFaceWidthRel {
		return detScore * 0.1
	}

	// Size factor saturates at 200px: beyond that, more pixels stop
	// improving embedding quality.
	sizeFactor := faceWidth / 200.0
	if sizeFactor > 1 {
		sizeFactor = 1
	}

	return detScore * (0.5 + 0.5*sizeFactor)
}
