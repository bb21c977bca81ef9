package gateways

import (
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"
)

// MaskCard keeps only the last four digits of a card number
func MaskCard(number string) string {
	digits := strings.NewReplacer(" ", "", "-", "").Replace(number)
	if len(digits) < 4 {
		return "****"
	}
	return strings.Repeat("*", len(digits)-4) + digits[len(digits)-4:]
}

// MaskPhone keeps the first two and last two digits of a phone number
func MaskPhone(phone string) string {
	if len(phone) <= 4 {
		return "****"
	}
	return phone[:2] + strings.Repeat("*", len(phone)-4) + phone[len(phone)-2:]
}

var sensitiveKeys = map[string]bool{
	"number": true, "card_number": true, "cardnumber": true, "pan": true,
	"cvc": true, "cvv": true, "cvv2": true, "otp": true, "otpvalue": true,
}

// Scrub removes card numbers, security codes and OTPs from a decoded payload in place
func Scrub(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		for k, child := range t {
			if sensitiveKeys[strings.ToLower(k)] {
				delete(t, k)
				continue
			}
			t[k] = Scrub(child)
		}
	case []interface{}:
		for i := range t {
			t[i] = Scrub(t[i])
		}
	}
	return v
}

// DecodeRaw parses a JSON body into a scrubbed diagnostic map. Non-object bodies are kept
// under "body".
func DecodeRaw(body []byte) map[string]interface{} {
	var raw map[string]interface{}
	if err := json.Unmarshal(body, &raw); err != nil || raw == nil {
		if len(body) == 0 {
			return map[string]interface{}{}
		}
		return map[string]interface{}{"body": string(body)}
	}
	Scrub(raw)
	return raw
}

// currencyExponent lists currencies whose minor unit is not 1/100
var currencyExponent = map[string]int32{
	"BHD": 3, "JOD": 3, "KWD": 3, "OMR": 3, "TND": 3,
	"JPY": 0, "KRW": 0, "VND": 0,
}

// Exponent returns the number of minor-unit digits of currency
func Exponent(currency string) int32 {
	if e, ok := currencyExponent[strings.ToUpper(currency)]; ok {
		return e
	}
	return 2
}

// ToMinor converts a major-unit amount into integer minor units (halalas, cents, fils)
func ToMinor(amount decimal.Decimal, currency string) int64 {
	return amount.Shift(Exponent(currency)).Round(0).IntPart()
}

// FromMinor converts integer minor units back into a major-unit amount
func FromMinor(minor int64, currency string) decimal.Decimal {
	return decimal.NewFromInt(minor).Shift(-Exponent(currency))
}
