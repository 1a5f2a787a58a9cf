package facematch

import (
	"image"
	"math"
	"sort"
)

// ComputeIoU calculates Intersection over Union between two bounding boxes.
// bbox1 and bbox2 are [x1, y1, x2, y2] in the same coordinate system.
func ComputeIoU(bbox1, bbox2 []float64) float64 {
	if len(bbox1) != 4 || len(bbox2) != 4 {
		return 0
	}

	// Calculate intersection.
	x1 := max(bbox1[0], bbox2[0])
	y1 := max(bbox1[1], bbox2[1])
	x2 := min(bbox1[2], bbox2[2])
	y2 := min(bbox1[3], bbox2[3])

	if x2 <= x1 || y2 <= y1 {
		return 0 // No intersection
	}

	intersection := (x2 - x1) * (y2 - y1)

	// Calculate union.
	area1 := (bbox1[2] - bbox1[0]) * (bbox1[3] - bbox1[1])
	area2 := (bbox2[2] - bbox2[0]) * (bbox2[3] - bbox2[1])
	union := area1 + area2 - intersection

	if union <= 0 {
		return 0
	}

	return intersection / union
}

// ClampBox converts a pixel bbox [x1, y1, x2, y2] to the smallest integer
// rectangle covering it, clipped to bounds. It reports false when the bbox is
// malformed or lies entirely outside bounds.
func ClampBox(bbox []float64, bounds image.Rectangle) (image.Rectangle, bool) {
	if len(bbox) != 4 {
		return image.Rectangle{}, false
	}
	for _, v := range bbox {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return image.Rectangle{}, false
		}
	}

	r := image.Rect(
		int(math.Floor(bbox[0])), int(math.Floor(bbox[1])),
		int(math.Ceil(bbox[2])), int(math.Ceil(bbox[3])),
	).Intersect(bounds)
	if r.Empty() {
		return image.Rectangle{}, false
	}
	return r, true
}

// SuppressOverlaps keeps the highest-scoring box of every group whose IoU
// exceeds threshold. boxes and scores are parallel; the returned indexes are
// in descending score order.
func SuppressOverlaps(boxes [][]float64, scores []float64, threshold float64) []int {
	order := make([]int, len(boxes))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return scores[order[a]] > scores[order[b]]
	})

	var kept []int
	for _, i := range order {
		overlaps := false
		for _, k := range kept {
			if ComputeIoU(boxes[i], boxes[k]) > threshold {
				overlaps = true
				break
			}
		}
		if !overlaps {
			kept = append(kept, i)
		}
	}
	return kept
}
