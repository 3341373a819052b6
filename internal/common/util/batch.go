package util

// Batch splits elements into consecutive groups of at most batchSize elements, preserving order.
// The last group holds the remainder. batchSize must be positive.
func Batch[T any](elements []T, batchSize int) [][]T {
	total := len(elements)

	n := total / batchSize
	lastBatchSize := total % batchSize
	totalBatches := n
	if lastBatchSize != 0 {
		totalBatches++
	}

	batches := make([][]T, totalBatches)

	for i := 0; i < n; i++ {
		batches[i] = elements[i*batchSize : (i+1)*batchSize]
	}

	if lastBatchSize != 0 {
		batches[n] = elements[n*batchSize : n*batchSize+lastBatchSize]
	}

	return batches
}
