package domain

// Label is the ground-truth verdict for an (ip, day) pair.
type Label string

const (
	LabelMalicious Label = "malicious"
	LabelBenign    Label = "benign"
	LabelUnknown   Label = "unknown"
)
