package lora

// Mode selects between training and evaluation behavior on a forward call.
// Dropout inside the low-rank delta applies only in ModeTrain. The mode is an
// explicit argument to every forward pass; there is no ambient training flag.
type Mode int

// Forward-pass modes.
const (
	ModeEval Mode = iota
	ModeTrain
)

// String returns a human-readable mode name.
func (m Mode) String() string {
	switch m {
	case ModeEval:
		return "eval"
	case ModeTrain:
		return "train"
	default:
		return "unknown"
	}
}
