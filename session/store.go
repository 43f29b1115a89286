package session

import "context"

// Store persists the single well-known session record. Implementations hold
// exactly one slot; Save overwrites whatever was there before.
type Store interface {
	// Save serializes the full session into the slot, atomically with
	// respect to partial writes. I/O failures wrap StorageFaultErr.
	Save(ctx context.Context, s *Session) error

	// Load returns the stored session, or (nil, nil) when the slot is
	// absent or empty. A non-empty but malformed record wraps ParseFaultErr.
	Load(ctx context.Context) (*Session, error)

	// Delete removes the record. A missing record is not an error.
	Delete(ctx context.Context) error
}
