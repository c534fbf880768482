package syncer

import "fmt"

// Range is an inclusive block interval.
type Range struct {
	From uint64
	To   uint64
}

func (r Range) String() string {
	return fmt.Sprintf("[%d,%d]", r.From, r.To)
}

// Batches partitions [start, height] into contiguous ranges of width blocks.
// The last range is truncated at height. It returns nil when start > height.
// A width of zero is treated as one.
func Batches(start, height, width uint64) []Range {
	if start > height {
		return nil
	}
	if width == 0 {
		width = 1
	}
	var out []Range
	for from := start; ; {
		to := height
		if height-from >= width {
			to = from + width - 1
		}
		out = append(out, Range{From: from, To: to})
		if to == height {
			return out
		}
		from = to + 1
	}
}
