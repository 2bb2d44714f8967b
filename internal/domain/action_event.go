package domain

import "time"

const (
	ActionBan   = "ban"
	ActionUnban = "unban"
)

// ActionEvent is one ban/unban record emitted by the detector's action hook.
// Arrival order in the stream is not guaranteed to match timestamp order.
type ActionEvent struct {
	Timestamp time.Time `json:"timestamp"`
	Action    string    `json:"action"`
	IP        string    `json:"ip"`
	Jail      string    `json:"jail"`
	Reason    string    `json:"reason,omitempty"`
}

// BanInterval is one continuous span an IP spent banned within a run.
// UnbanTime is nil when the run ended before the detector lifted the ban.
type BanInterval struct {
	IP        string     `json:"ip"`
	Jail      string     `json:"jail"`
	BanTime   time.Time  `json:"ban_time"`
	UnbanTime *time.Time `json:"unban_time,omitempty"`
}

// Open reports whether the interval was still active at run end.
func (b BanInterval) Open() bool {
	return b.UnbanTime == nil
}

// Duration returns the closed interval length; ok is false for open intervals.
func (b BanInterval) Duration() (time.Duration, bool) {
	if b.UnbanTime == nil {
		return 0, false
	}
	return b.UnbanTime.Sub(b.BanTime), true
}
