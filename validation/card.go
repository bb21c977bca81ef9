package validation

import (
	"strconv"
	"strings"
	"time"
)

// NormalizeCardNumber strips spaces and dashes from a card number
func NormalizeCardNumber(number string) string {
	return strings.NewReplacer(" ", "", "-", "").Replace(number)
}

// Luhn reports whether number passes the Luhn checksum
func Luhn(number string) bool {
	number = NormalizeCardNumber(number)
	if len(number) < 12 || len(number) > 19 {
		return false
	}
	sum := 0
	double := false
	for i := len(number) - 1; i >= 0; i-- {
		c := number[i]
		if c < '0' || c > '9' {
			return false
		}
		n := int(c - '0')
		if double {
			n *= 2
			if n > 9 {
				n -= 9
			}
		}
		sum += n
		double = !double
	}
	return sum%10 == 0
}

// IsAmex reports whether number belongs to the American Express ranges (34, 37),
// which use four-digit security codes.
func IsAmex(number string) bool {
	number = NormalizeCardNumber(number)
	return strings.HasPrefix(number, "34") || strings.HasPrefix(number, "37")
}

// ParseExpiry parses an expiry month and a two- or four-digit year
func ParseExpiry(month, year string) (int, int, bool) {
	m, err := strconv.Atoi(strings.TrimSpace(month))
	if err != nil || m < 1 || m > 12 {
		return 0, 0, false
	}
	year = strings.TrimSpace(year)
	y, err := strconv.Atoi(year)
	if err != nil {
		return 0, 0, false
	}
	switch len(year) {
	case 2:
		y += 2000
	case 4:
	default:
		return 0, 0, false
	}
	return m, y, true
}

// Expired reports whether a card expiring at month/year has elapsed at now.
// Cards stay valid through the last day of their expiry month.
func Expired(month, year int, now time.Time) bool {
	if year != now.Year() {
		return year < now.Year()
	}
	return month < int(now.Month())
}

// ValidCVV checks the security code length for the card scheme
func ValidCVV(cvv, cardNumber string) bool {
	want := 3
	if IsAmex(cardNumber) {
		want = 4
	}
	if len(cvv) != want {
		return false
	}
	for _, c := range cvv {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
