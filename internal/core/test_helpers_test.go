package core

import (
	"sync"
	"testing"
	"time"

	"github.com/vovakirdan/agora-server/internal/log"
)

type fakeSession struct {
	id        string
	principal *Principal

	mu     sync.Mutex
	frames [][]byte
	fail   error
}

func newFakeSession(id string, principal *Principal) *fakeSession {
	return &fakeSession{id: id, principal: principal}
}

func (f *fakeSession) ID() string            { return f.id }
func (f *fakeSession) Principal() *Principal { return f.principal }
func (f *fakeSession) Info() SessionInfo {
	return SessionInfo{SessionID: f.id, Principal: f.principal.Name}
}

func (f *fakeSession) Send(payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return f.fail
	}
	f.frames = append(f.frames, payload)
	return nil
}

func (f *fakeSession) received() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.frames)
}

func newTestRegistry() *Registry {
	return NewRegistry(log.Nop())
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met before deadline")
}
