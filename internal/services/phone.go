package services

import (
	"regexp"
	"strings"
)

var (
	phonePattern           = regexp.MustCompile(`^254(7|1)\d{8}$`)
	transactionCodePattern = regexp.MustCompile(`^[A-Z0-9]{10}$`)
)

// NormalizePhone accepts 07XXXXXXXX, 7XXXXXXXX, +2547XXXXXXXX and 2547XXXXXXXX
// (and the 01 range) and returns the 2547XXXXXXXX form.
func NormalizePhone(raw string) (string, error) {
	phone := strings.NewReplacer(" ", "", "-", "", "(", "", ")", "").Replace(strings.TrimSpace(raw))
	phone = strings.TrimPrefix(phone, "+")

	switch {
	case strings.HasPrefix(phone, "0") && len(phone) == 10:
		phone = "254" + phone[1:]
	case (strings.HasPrefix(phone, "7") || strings.HasPrefix(phone, "1")) && len(phone) == 9:
		phone = "254" + phone
	}

	if !phonePattern.MatchString(phone) {
		return "", &ValidationError{Field: "phoneNumber", Message: "must be a Kenyan mobile number such as 0712345678 or 254712345678"}
	}
	return phone, nil
}

// NormalizeTransactionCode upper-cases an M-Pesa receipt code and checks its shape.
func NormalizeTransactionCode(raw string) (string, error) {
	code := strings.ToUpper(strings.TrimSpace(raw))
	if code == "" {
		return "", &ValidationError{Field: "transactionCode", Message: "is required"}
	}
	if !transactionCodePattern.MatchString(code) {
		return "", &ValidationError{Field: "transactionCode", Message: "must be the 10 character M-Pesa code from the confirmation SMS"}
	}
	return code, nil
}
