package imap

import "sync"

// broadcaster fans untagged responses out to the other sessions that
// have the same user's folder selected. Lines queue on each receiving
// session and drain at its next command boundary, so a session never
// sees foreign data in the middle of its own response.
type broadcaster struct {
	mu   sync.Mutex
	subs map[string]map[*session]struct{}
}

func newBroadcaster() *broadcaster {
	return &broadcaster{subs: make(map[string]map[*session]struct{})}
}

func selectionKey(maildir, folder string) string {
	return maildir + "\x00" + folder
}

func (b *broadcaster) subscribe(s *session, maildir, folder string) {
	key := selectionKey(maildir, folder)
	b.mu.Lock()
	defer b.mu.Unlock()
	set, ok := b.subs[key]
	if !ok {
		set = make(map[*session]struct{})
		b.subs[key] = set
	}
	set[s] = struct{}{}
	s.subKey = key
}

func (b *broadcaster) unsubscribe(s *session) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if s.subKey == "" {
		return
	}
	if set, ok := b.subs[s.subKey]; ok {
		delete(set, s)
		if len(set) == 0 {
			delete(b.subs, s.subKey)
		}
	}
	s.subKey = ""
}

// post queues the lines on every subscriber of the folder except the
// originating session, which already wrote its own responses.
func (b *broadcaster) post(from *session, maildir, folder string, lines []string) {
	if len(lines) == 0 {
		return
	}
	key := selectionKey(maildir, folder)
	b.mu.Lock()
	var targets []*session
	for s := range b.subs[key] {
		if s != from {
			targets = append(targets, s)
		}
	}
	b.mu.Unlock()
	for _, s := range targets {
		s.enqueue(lines)
	}
}
