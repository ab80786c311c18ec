// Package validation содержит проверки полей оформления заказа.
package validation

import "strings"

// IsValidPhone проверяет контактный телефон покупателя: допускаются цифры,
// ведущий плюс и распространённые разделители; значащих цифр 10–15.
func IsValidPhone(phone string) bool {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return false
	}

	var digits int
	for i, r := range phone {
		switch {
		case r >= '0' && r <= '9':
			digits++
		case r == '+' && i == 0:
		case r == ' ' || r == '-' || r == '(' || r == ')':
		default:
			return false
		}
	}

	return digits >= 10 && digits <= 15
}

// IsValidTransferReference проверяет идентификатор банковского перевода для
// ручной оплаты: непустая строка из букв, цифр и дефисов.
func IsValidTransferReference(ref string) bool {
	ref = strings.TrimSpace(ref)
	if len(ref) < 4 {
		return false
	}

	for _, r := range ref {
		switch {
		case r >= '0' && r <= '9':
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r == '-':
		default:
			return false
		}
	}

	return true
}
