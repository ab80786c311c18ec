package validation

import "testing"

func TestIsValidPhone(t *testing.T) {
	tests := []struct {
		phone string
		want  bool
	}{
		{"+79990001122", true},
		{"+7 (999) 000-11-22", true},
		{"89990001122", true},
		{"  +79990001122  ", true},
		{"", false},
		{"12345", false},                 // слишком короткий
		{"1234567890123456", false},      // слишком длинный
		{"phone", false},                 // буквы
		{"+7999000112+2", false},         // плюс не в начале
		{"+7 999 000 11 22 ext5", false}, // недопустимые символы
	}

	for _, tt := range tests {
		if got := IsValidPhone(tt.phone); got != tt.want {
			t.Errorf("IsValidPhone(%q) = %v, want %v", tt.phone, got, tt.want)
		}
	}
}

func TestIsValidTransferReference(t *testing.T) {
	tests := []struct {
		ref  string
		want bool
	}{
		{"TRX-2024-0001", true},
		{"abcd", true},
		{"  TRX-1  ", true},
		{"", false},
		{"abc", false},      // короче минимума
		{"TRX 001", false},  // пробел внутри
		{"TRX_001", false},  // подчёркивание
		{"TRX#001", false},  // спецсимвол
	}

	for _, tt := range tests {
		if got := IsValidTransferReference(tt.ref); got != tt.want {
			t.Errorf("IsValidTransferReference(%q) = %v, want %v", tt.ref, got, tt.want)
		}
	}
}
