package mpesa

import (
	"encoding/base64"
	"time"
)

const timestampLayout = "20060102150405"

var nairobi = loadNairobi()

func loadNairobi() *time.Location {
	loc, err := time.LoadLocation("Africa/Nairobi")
	if err != nil {
		return time.FixedZone("EAT", 3*60*60)
	}
	return loc
}

// Timestamp formats t the way Daraja expects: YYYYMMDDHHmmss, East Africa Time.
func Timestamp(t time.Time) string {
	return t.In(nairobi).Format(timestampLayout)
}

// Password builds the STK password: base64(shortCode + passKey + timestamp).
// Daraja recomputes it server side, so the concatenation order is fixed.
func Password(shortCode, passKey, timestamp string) string {
	return base64.StdEncoding.EncodeToString([]byte(shortCode + passKey + timestamp))
}
