// Package detector models the intrusion detector strictly through its two
// observable surfaces: the status query and the action event stream. The
// detector itself is a black box; no internal timing is assumed.
package detector

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"banbench/internal/domain"
)

// StatusClient answers a synchronous "who is banned right now" query for a
// named jail.
type StatusClient interface {
	Status(ctx context.Context, jail string) (domain.StatusSnapshot, error)
}

// Fail2banClient shells out to fail2ban-client. It first asks for the banned
// list with timestamps and falls back to the plain status output on older
// servers that do not support --with-time.
type Fail2banClient struct {
	// Command is the client binary, default "fail2ban-client".
	Command string
	// Timeout bounds one query; zero means 10s.
	Timeout time.Duration
}

const defaultStatusTimeout = 10 * time.Second

func (c *Fail2banClient) Status(ctx context.Context, jail string) (domain.StatusSnapshot, error) {
	command := c.Command
	if command == "" {
		command = "fail2ban-client"
	}
	timeout := c.Timeout
	if timeout == 0 {
		timeout = defaultStatusTimeout
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	taken := time.Now().UTC()

	out, err := exec.CommandContext(ctx, command, "get", jail, "banip", "--with-time").CombinedOutput()
	if err == nil {
		banned := ParseBanIPWithTime(string(out))
		return domain.StatusSnapshot{Jail: jail, TakenAt: taken, Banned: banned, Raw: string(out)}, nil
	}
	log.Debug("banip --with-time unavailable, falling back to status", "jail", jail, "error", err)

	out, err = exec.CommandContext(ctx, command, "status", jail).CombinedOutput()
	if err != nil {
		return domain.StatusSnapshot{}, fmt.Errorf("query jail %q status: %w (output: %s)", jail, err, strings.TrimSpace(string(out)))
	}
	banned := ParseStatusOutput(string(out))
	return domain.StatusSnapshot{Jail: jail, TakenAt: taken, Banned: banned, Raw: string(out)}, nil
}

// ParseBanIPWithTime parses `fail2ban-client get <jail> banip --with-time`
// output. Each line looks like:
//
//	192.0.2.7 	2024-12-17 00:04:10 + 600 = 2024-12-17 00:14:10
func ParseBanIPWithTime(out string) []domain.BannedIP {
	var banned []domain.BannedIP
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 3 {
			continue
		}
		ip := fields[0]
		ts, err := time.Parse("2006-01-02 15:04:05", fields[1]+" "+fields[2])
		if err != nil {
			banned = append(banned, domain.BannedIP{IP: ip})
			continue
		}
		banned = append(banned, domain.BannedIP{IP: ip, BanTime: ts})
	}
	return banned
}

// ParseStatusOutput pulls the "Banned IP list:" entries out of the tree-style
// status output. Timestamps are not reported there.
func ParseStatusOutput(out string) []domain.BannedIP {
	var banned []domain.BannedIP
	for _, line := range strings.Split(out, "\n") {
		idx := strings.Index(line, "Banned IP list:")
		if idx < 0 {
			continue
		}
		for _, ip := range strings.Fields(line[idx+len("Banned IP list:"):]) {
			banned = append(banned, domain.BannedIP{IP: ip})
		}
	}
	return banned
}
