package support

import (
	"net"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/oschwald/geoip2-golang"
)

var (
	geoMu        sync.Mutex
	geoCountryDB *geoip2.Reader
	geoPath      string
)

// OpenGeoDB points country lookups at a GeoLite2 country database. Passing an
// empty path disables enrichment; lookups then return "".
func OpenGeoDB(path string) error {
	geoMu.Lock()
	defer geoMu.Unlock()

	if geoCountryDB != nil {
		_ = geoCountryDB.Close()
		geoCountryDB = nil
	}
	geoPath = path
	if path == "" {
		return nil
	}

	db, err := geoip2.Open(path)
	if err != nil {
		return err
	}
	geoCountryDB = db
	log.Debug("GeoLite country database loaded", "path", path)
	return nil
}

// CountryFor resolves an IP to an ISO country code, or "" when enrichment is
// disabled or the IP is not in the database.
func CountryFor(ip string) string {
	geoMu.Lock()
	db := geoCountryDB
	geoMu.Unlock()

	if db == nil {
		return ""
	}
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return ""
	}
	record, err := db.Country(parsed)
	if err != nil || record == nil {
		return ""
	}
	return record.Country.IsoCode
}

func CloseGeoDB() {
	geoMu.Lock()
	defer geoMu.Unlock()
	if geoCountryDB != nil {
		_ = geoCountryDB.Close()
		geoCountryDB = nil
	}
}
