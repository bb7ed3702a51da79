package auth

import "sync"

type subscriber struct {
	id int
	fn func(Event)
}

// subscribers keeps callbacks in registration order.
type subscribers struct {
	mu     sync.Mutex
	nextID int
	list   []subscriber
}

func (s *subscribers) add(fn func(Event)) func() {
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.list = append(s.list, subscriber{id: id, fn: fn})
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { s.remove(id) })
	}
}

func (s *subscribers) remove(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, sub := range s.list {
		if sub.id == id {
			s.list = append(s.list[:i:i], s.list[i+1:]...)
			return
		}
	}
}

// emit calls every subscriber outside the lock so callbacks may unsubscribe.
func (s *subscribers) emit(ev Event) {
	s.mu.Lock()
	snapshot := make([]subscriber, len(s.list))
	copy(snapshot, s.list)
	s.mu.Unlock()

	for _, sub := range snapshot {
		sub.fn(ev)
	}
}

func (s *subscribers) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.list)
}
