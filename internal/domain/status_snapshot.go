package domain

import "time"

// BannedIP is one entry of a detector status reply. BanTime is zero when the
// detector does not report timestamps for its current ban list.
type BannedIP struct {
	IP      string    `json:"ip"`
	BanTime time.Time `json:"ban_time,omitzero"`
}

// StatusSnapshot is the detector's ban list for one jail at query time.
type StatusSnapshot struct {
	Jail    string     `json:"jail"`
	TakenAt time.Time  `json:"taken_at"`
	Banned  []BannedIP `json:"banned"`
	Raw     string     `json:"raw,omitempty"`
}
