package realtime

import "talentflow/pkg/domain"

// frame is one encoded server message. id is zero for the backlog frame.
type frame struct {
	id      domain.NotificationID
	payload []byte
}

// ring is a fixed-capacity FIFO that overwrites its oldest entry when full.
// It is not safe for concurrent use; Session guards it.
type ring struct {
	buf  []frame
	head int
	size int
}

func newRing(capacity int) *ring {
	if capacity < 1 {
		capacity = 1
	}
	return &ring{buf: make([]frame, capacity)}
}

// push appends f and reports whether the oldest entry was dropped for it.
func (r *ring) push(f frame) (dropped bool) {
	if r.size == len(r.buf) {
		r.buf[r.head] = frame{}
		r.head = (r.head + 1) % len(r.buf)
		r.size--
		dropped = true
	}
	r.buf[(r.head+r.size)%len(r.buf)] = f
	r.size++
	return dropped
}

// drain removes and returns every entry, oldest first.
func (r *ring) drain() []frame {
	if r.size == 0 {
		return nil
	}
	out := make([]frame, 0, r.size)
	for i := 0; i < r.size; i++ {
		idx := (r.head + i) % len(r.buf)
		out = append(out, r.buf[idx])
		r.buf[idx] = frame{}
	}
	r.head, r.size = 0, 0
	return out
}

func (r *ring) len() int { return r.size }
