package face

import "sort"

// IoU は2つの矩形の重なり率 (Intersection over Union) を返す
func IoU(a, b Box) float32 {
	x1 := max(a.X, b.X)
	y1 := max(a.Y, b.Y)
	x2 := min(a.X+a.W, b.X+b.W)
	y2 := min(a.Y+a.H, b.Y+b.H)
	if x2 <= x1 || y2 <= y1 {
		return 0
	}

	inter := (x2 - x1) * (y2 - y1)
	union := a.Area() + b.Area() - inter
	if union <= 0 {
		return 0
	}
	return float32(inter) / float32(union)
}

// Sort はスコアの降順に並べる。同点は座標で決める
func Sort(boxes []Box) {
	sort.SliceStable(boxes, func(i, j int) bool {
		a, b := boxes[i], boxes[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Y != b.Y {
			return a.Y < b.Y
		}
		if a.X != b.X {
			return a.X < b.X
		}
		if a.W != b.W {
			return a.W < b.W
		}
		return a.H < b.H
	})
}

// NMS は非最大値抑制をかけた結果を返す
// 入力は変更しない。戻り値はSortの順序になる
func NMS(boxes []Box, threshold float32) []Box {
	sorted := append([]Box(nil), boxes...)
	Sort(sorted)

	kept := make([]Box, 0, len(sorted))
	for _, b := range sorted {
		suppressed := false
		for _, k := range kept {
			if IoU(b, k) > threshold {
				suppressed = true
				break
			}
		}
		if !suppressed {
			kept = append(kept, b)
		}
	}
	return kept
}
