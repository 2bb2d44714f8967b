package metrics

import (
	"fmt"
	"sort"

	"github.com/charmbracelet/log"

	"banbench/internal/domain"
)

// ReconstructIntervals pairs each ban with the next unban for the same IP
// and jail, chronologically. The input must already be sorted by timestamp;
// the reconstruction is idempotent for a given sorted event list.
//
// An unban with no open ban is a data anomaly: it is reported but produces
// no interval. A ban that never closes becomes one open interval.
func ReconstructIntervals(events []domain.ActionEvent) ([]domain.BanInterval, []string) {
	type jailKey struct {
		ip   string
		jail string
	}

	open := make(map[jailKey][]int) // indexes into intervals, FIFO
	var intervals []domain.BanInterval
	var anomalies []string

	for _, event := range events {
		k := jailKey{ip: event.IP, jail: event.Jail}
		switch event.Action {
		case domain.ActionBan:
			intervals = append(intervals, domain.BanInterval{
				IP:      event.IP,
				Jail:    event.Jail,
				BanTime: event.Timestamp,
			})
			open[k] = append(open[k], len(intervals)-1)
		case domain.ActionUnban:
			queue := open[k]
			if len(queue) == 0 {
				msg := fmt.Sprintf("unban without preceding ban: ip=%s jail=%s at %s",
					event.IP, event.Jail, event.Timestamp.Format("2006-01-02T15:04:05Z07:00"))
				anomalies = append(anomalies, msg)
				log.Warn("unmatched unban event", "ip", event.IP, "jail", event.Jail, "timestamp", event.Timestamp)
				continue
			}
			idx := queue[0]
			open[k] = queue[1:]
			ts := event.Timestamp
			intervals[idx].UnbanTime = &ts
		}
	}

	sort.SliceStable(intervals, func(i, j int) bool {
		return intervals[i].BanTime.Before(intervals[j].BanTime)
	})
	return intervals, anomalies
}
