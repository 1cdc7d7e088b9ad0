// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

package staging

// history keeps the most recently delivered records, overwriting the oldest
// once limit is reached. A zero limit keeps nothing.
type history struct {
	records []string
	head    int // next write position
	size    int
}

func newHistory(limit int) *history {
	return &history{records: make([]string, limit)}
}

func (h *history) add(record string) {
	if len(h.records) == 0 {
		return
	}
	h.records[h.head] = record
	h.head = (h.head + 1) % len(h.records)
	if h.size < len(h.records) {
		h.size++
	}
}

// all returns the kept records oldest first.
func (h *history) all() []string {
	result := make([]string, h.size)
	if h.size < len(h.records) {
		copy(result, h.records[:h.size])
		return result
	}
	// Full: the oldest record sits at head.
	n := copy(result, h.records[h.head:])
	copy(result[n:], h.records[:h.head])
	return result
}
