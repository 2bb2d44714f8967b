package detector

import (
	"testing"
	"time"
)

func TestParseBanIPWithTime(t *testing.T) {
	out := "192.0.2.7 \t2024-12-17 00:04:10 + 600 = 2024-12-17 00:14:10\n" +
		"198.51.100.3 \t2024-12-17 00:05:00 + 600 = 2024-12-17 00:15:00\n" +
		"\n"

	banned := ParseBanIPWithTime(out)
	if len(banned) != 2 {
		t.Fatalf("banned = %d entries, want 2", len(banned))
	}
	if banned[0].IP != "192.0.2.7" {
		t.Fatalf("first ip = %q", banned[0].IP)
	}
	want := time.Date(2024, 12, 17, 0, 4, 10, 0, time.UTC)
	if !banned[0].BanTime.Equal(want) {
		t.Fatalf("first ban time = %v, want %v", banned[0].BanTime, want)
	}
}

func TestParseBanIPWithTimeKeepsIPOnBadTimestamp(t *testing.T) {
	banned := ParseBanIPWithTime("203.0.113.9 not a timestamp\n")
	if len(banned) != 1 {
		t.Fatalf("banned = %d entries, want 1", len(banned))
	}
	if banned[0].IP != "203.0.113.9" {
		t.Fatalf("ip = %q", banned[0].IP)
	}
	if !banned[0].BanTime.IsZero() {
		t.Fatalf("ban time should be zero when unparseable, got %v", banned[0].BanTime)
	}
}

func TestParseStatusOutput(t *testing.T) {
	out := `Status for the jail: ssh-proxmox
|- Filter
|  |- Currently failed: 1
|  |- Total failed:     13
|  ` + "`- File list:\t/var/log/auth.log" + `
` + "`- Actions" + `
   |- Currently banned: 2
   |- Total banned:     4
   ` + "`- Banned IP list:\t192.0.2.7 198.51.100.3" + `
`

	banned := ParseStatusOutput(out)
	if len(banned) != 2 {
		t.Fatalf("banned = %d entries, want 2", len(banned))
	}
	if banned[0].IP != "192.0.2.7" || banned[1].IP != "198.51.100.3" {
		t.Fatalf("banned = %v", banned)
	}
	if !banned[0].BanTime.IsZero() {
		t.Fatalf("plain status output carries no ban times")
	}
}

func TestParseStatusOutputEmptyList(t *testing.T) {
	banned := ParseStatusOutput("   `- Banned IP list:\t\n")
	if len(banned) != 0 {
		t.Fatalf("banned = %v, want empty", banned)
	}
}
