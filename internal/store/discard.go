package store

// Discard is the degraded-mode namespace used when the durable medium is
// unavailable: reads return the supplied default and writes are dropped.
type Discard struct{}

// Open returns a scope that persists nothing.
func (Discard) Open() (Scope, error) { return discardScope{}, nil }

// Durable is always false.
func (Discard) Durable() bool { return false }

// Close is a no-op.
func (Discard) Close() error { return nil }

type discardScope struct{}

func (discardScope) Has(string) bool                     { return false }
func (discardScope) GetInt(_ string, def int32) int32    { return def }
func (discardScope) PutInt(string, int32)                {}
func (discardScope) GetUint(_ string, def uint32) uint32 { return def }
func (discardScope) PutUint(string, uint32)              {}
func (discardScope) Close() error                        { return nil }
