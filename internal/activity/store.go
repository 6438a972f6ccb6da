package activity

import "time"

// SegmentStore is the persistence boundary for activity segments. All write
// failures are soft from the manager's point of view: they are logged and the
// in-memory current segment stays authoritative.
type SegmentStore interface {
	Insert(seg *Segment) error
	Update(seg *Segment) error
	UpdateStepData(seg *Segment) error

	MostRecent(n int) ([]*Segment, error)
	FindAt(t time.Time) (*Segment, error)
	FindByLookupID(id string) (*Segment, error)
}
