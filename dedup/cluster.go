package dedup

import (
	"fmt"
)

const noiseLabel = -1

type DegenerateFeaturesErr struct {
	Index int
}

func (err DegenerateFeaturesErr) Error() string {
	return fmt.Sprintf("feature vector %d is degenerate", err.Index)
}

// dbscan labels each point with a cluster id, or noiseLabel for outliers.
// With minPoints=2 every linked pair forms a cluster, which is exactly the
// granularity the duplicate-finding pass needs. Degenerate input (non-finite
// or zero-norm vectors) is reported as an error so the caller can fall back
// to hierarchical clustering.
func dbscan(points [][]float64, eps float64, minPoints int) ([]int, error) {
	for i, p := range points {
		if !finite(p) {
			return nil, DegenerateFeaturesErr{Index: i}
		}
	}

	labels := make([]int, len(points))
	for i := range labels {
		labels[i] = noiseLabel
	}

	neighbors := func(i int) ([]int, error) {
		var res []int
		for j := range points {
			if i == j {
				continue
			}
			d := cosineDistance(points[i], points[j])
			if d < 0 {
				return nil, DegenerateFeaturesErr{Index: j}
			}
			if d <= eps {
				res = append(res, j)
			}
		}
		return res, nil
	}

	visited := make([]bool, len(points))
	next := 0

	for i := range points {
		if visited[i] {
			continue
		}
		visited[i] = true

		nbs, err := neighbors(i)
		if err != nil {
			return nil, err
		}
		if len(nbs)+1 < minPoints {
			continue
		}

		labels[i] = next
		queue := append([]int{}, nbs...)
		for len(queue) > 0 {
			j := queue[0]
			queue = queue[1:]

			if labels[j] == noiseLabel {
				labels[j] = next
			}
			if visited[j] {
				continue
			}
			visited[j] = true
			labels[j] = next

			jnbs, err := neighbors(j)
			if err != nil {
				return nil, err
			}
			if len(jnbs)+1 >= minPoints {
				queue = append(queue, jnbs...)
			}
		}
		next++
	}

	return labels, nil
}

// singleLinkage is the hierarchical fallback: points whose euclidean
// distance is below the threshold end up in the same cluster, transitively.
// Every point receives a label; singleton clusters are pruned by the caller.
func singleLinkage(points [][]float64, threshold float64) []int {
	ds := NewDisjointSet()
	for i := range points {
		ds.Add(uint(i))
	}
	for i := 0; i < len(points); i++ {
		for j := i + 1; j < len(points); j++ {
			if euclideanDistance(points[i], points[j]) <= threshold {
				ds.Union(uint(i), uint(j))
			}
		}
	}

	labels := make([]int, len(points))
	rootToLabel := map[uint]int{}
	next := 0
	for i := range points {
		root := ds.Find(uint(i))
		label, ok := rootToLabel[root]
		if !ok {
			label = next
			rootToLabel[root] = label
			next++
		}
		labels[i] = label
	}
	return labels
}
