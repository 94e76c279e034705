package queue

// Backend journals queue intents. The queue contract (FIFO per session,
// exactly-once execution in-process) holds identically under either
// implementation; the backend only adds durability of intent.
type Backend interface {
	// Append records that an operation was accepted for a session and
	// returns a token identifying the journal entry.
	Append(sessionID, operation string) (int64, error)
	// Complete marks the journal entry finished, with the operation's
	// error if it failed.
	Complete(token int64, opErr error)
}

// MemoryBackend is the default in-process backend: no journaling.
type MemoryBackend struct{}

// NewMemoryBackend returns the no-op backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{}
}

func (*MemoryBackend) Append(sessionID, operation string) (int64, error) {
	return 0, nil
}

func (*MemoryBackend) Complete(token int64, opErr error) {}
