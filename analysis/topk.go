package analysis

import (
	"sort"

	"odescreen/types"
)

// SelectTopK returns the k images with the highest detection scores,
// descending. The sort is stable, so equal scores keep their capture order;
// missing scores (zero) sort last. The input slice is never reordered.
func SelectTopK(images []*types.CapturedImage, k int) []*types.CapturedImage {
	if k <= 0 || len(images) == 0 {
		return nil
	}

	ranked := make([]*types.CapturedImage, len(images))
	copy(ranked, images)

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].DetectionScore > ranked[j].DetectionScore
	})

	if k > len(ranked) {
		k = len(ranked)
	}
	return ranked[:k]
}
