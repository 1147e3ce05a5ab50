package story

import "github.com/cockroachdb/errors"

// Errors
var (
	ErrEmptySequence = errors.New("sequence has no items")
	ErrOutOfRange    = errors.New("index out of sequence range")
)

// Sequence is an ordered collection of story items with shown-flag tracking.
// The current item is defined as the first item in order whose shown flag is
// false, or the last item when every flag is set. A linear scan is the ground
// truth; sequences are small (tens of items).
type Sequence struct {
	items []*Item
}

// NewSequence creates a sequence from the given items.
//
// A nil slot is a reset marker: if any slot is nil, every item's shown flag
// is cleared and the nil slots are dropped. Otherwise all items at or after
// startIndex are forced unshown; flags before startIndex are left as-is.
// startIndex is clamped to the sequence bounds.
func NewSequence(items []*Item, startIndex int) (*Sequence, error) {
	kept := make([]*Item, 0, len(items))
	hasNil := false
	for _, it := range items {
		if it == nil {
			hasNil = true
			continue
		}
		kept = append(kept, it)
	}
	if len(kept) == 0 {
		return nil, ErrEmptySequence
	}

	s := &Sequence{items: kept}

	if hasNil {
		s.ResetAll()
		return s, nil
	}

	if startIndex < 0 {
		startIndex = 0
	}
	if startIndex >= len(kept) {
		startIndex = len(kept) - 1
	}
	s.ResetFrom(startIndex)
	return s, nil
}

// Len returns the number of items.
func (s *Sequence) Len() int {
	return len(s.items)
}

// At returns the item at index i.
func (s *Sequence) At(i int) (*Item, error) {
	if i < 0 || i >= len(s.items) {
		return nil, ErrOutOfRange
	}
	return s.items[i], nil
}

// Current returns the first unshown item and its index, or the last item if
// all items are shown.
func (s *Sequence) Current() (*Item, int) {
	for i, it := range s.items {
		if !it.shown {
			return it, i
		}
	}
	last := len(s.items) - 1
	return s.items[last], last
}

// AllShown reports whether every item has been shown.
func (s *Sequence) AllShown() bool {
	for _, it := range s.items {
		if !it.shown {
			return false
		}
	}
	return true
}

// MarkShown sets the shown flag of the item at index i.
func (s *Sequence) MarkShown(i int) {
	if i < 0 || i >= len(s.items) {
		return
	}
	s.items[i].shown = true
}

// Reset clears the shown flag of the item at index i.
func (s *Sequence) Reset(i int) {
	if i < 0 || i >= len(s.items) {
		return
	}
	s.items[i].shown = false
}

// ResetFrom clears the shown flags of all items at or after index i.
func (s *Sequence) ResetFrom(i int) {
	if i < 0 {
		i = 0
	}
	for ; i < len(s.items); i++ {
		s.items[i].shown = false
	}
}

// ResetAll clears every item's shown flag.
func (s *Sequence) ResetAll() {
	s.ResetFrom(0)
}

// IndexOf returns the index of the given item, or -1 if it is not part of
// the sequence.
func (s *Sequence) IndexOf(item *Item) int {
	for i, it := range s.items {
		if it == item {
			return i
		}
	}
	return -1
}

// Before returns the item immediately preceding the given item.
func (s *Sequence) Before(item *Item) (*Item, error) {
	i := s.IndexOf(item)
	if i <= 0 {
		return nil, ErrOutOfRange
	}
	return s.items[i-1], nil
}

// After returns the item immediately following the given item.
func (s *Sequence) After(item *Item) (*Item, error) {
	i := s.IndexOf(item)
	if i < 0 || i == len(s.items)-1 {
		return nil, ErrOutOfRange
	}
	return s.items[i+1], nil
}

// Items returns the items in order. The slice is a copy; the items are not.
func (s *Sequence) Items() []*Item {
	result := make([]*Item, len(s.items))
	copy(result, s.items)
	return result
}
