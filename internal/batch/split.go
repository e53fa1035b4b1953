// Package batch splits record lists into write-sized chunks.
package batch

// Split partitions items into consecutive chunks of at most size elements,
// preserving order. The last chunk may be shorter. A size below one is
// treated as one and an empty input yields no chunks. Chunks share the
// backing array of items.
func Split[T any](items []T, size int) [][]T {
	if len(items) == 0 {
		return nil
	}
	if size < 1 {
		size = 1
	}

	chunks := make([][]T, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		chunks = append(chunks, items[start:end:end])
	}
	return chunks
}
