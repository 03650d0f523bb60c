package agent

import (
	"hrm-reasoner/session"
	"hrm-reasoner/utils"
)

// SignatureWindow is a fixed-capacity ordered set of recent low-level thought
// signatures. Adding beyond capacity drops the oldest signature.
type SignatureWindow struct {
	recent     []string
	windowSize int
}

// NewSignatureWindow creates a window seeded with previously recorded signatures.
func NewSignatureWindow(windowSize int, seed []string) *SignatureWindow {
	w := &SignatureWindow{
		recent:     make([]string, 0, windowSize),
		windowSize: windowSize,
	}
	for _, sig := range seed {
		w.Add(sig)
	}
	return w
}

// Contains reports whether sig is one of the recent signatures.
func (w *SignatureWindow) Contains(sig string) bool {
	return utils.Contains(w.recent, sig)
}

// Add records sig as the most recent signature.
func (w *SignatureWindow) Add(sig string) {
	w.recent = utils.AppendBounded(w.recent, sig, w.windowSize)
}

// Signatures returns a copy of the window, oldest first.
func (w *SignatureWindow) Signatures() []string {
	return append([]string(nil), w.recent...)
}

// Len returns the number of recorded signatures.
func (w *SignatureWindow) Len() int {
	return len(w.recent)
}

// lThoughtWindow restores the duplicate-suppression window of st.
func lThoughtWindow(st *session.State) *SignatureWindow {
	return NewSignatureWindow(session.MaxThoughtSignatures, st.RecentLThoughtHashes)
}
