package utils

import "testing"

func TestIsValidEmail(t *testing.T) {
	valid := []string{"owner@example.com", "a.b+tag@shop.co"}
	invalid := []string{"", "not-an-email", "@example.com", "owner@", "owner@@example.com"}

	for _, email := range valid {
		if !IsValidEmail(email) {
			t.Errorf("IsValidEmail(%q) = false, want true", email)
		}
	}
	for _, email := range invalid {
		if IsValidEmail(email) {
			t.Errorf("IsValidEmail(%q) = true, want false", email)
		}
	}
}

func TestIsValidPIN(t *testing.T) {
	valid := []string{"1234", "00000000"}
	invalid := []string{"", "123", "123456789", "12a4", "12 4"}

	for _, pin := range valid {
		if !IsValidPIN(pin) {
			t.Errorf("IsValidPIN(%q) = false, want true", pin)
		}
	}
	for _, pin := range invalid {
		if IsValidPIN(pin) {
			t.Errorf("IsValidPIN(%q) = true, want false", pin)
		}
	}
}

func TestIsValidDeviceID(t *testing.T) {
	valid := []string{"device-a", "a1b2c3d4-e5f6-7890", "abcd_efgh"}
	invalid := []string{"", "short", "has space", "bad/char", string(make([]byte, 65))}

	for _, id := range valid {
		if !IsValidDeviceID(id) {
			t.Errorf("IsValidDeviceID(%q) = false, want true", id)
		}
	}
	for _, id := range invalid {
		if IsValidDeviceID(id) {
			t.Errorf("IsValidDeviceID(%q) = true, want false", id)
		}
	}
}

func TestIsStrongPassword(t *testing.T) {
	if IsStrongPassword("short1A") {
		t.Error("seven characters accepted")
	}
	if IsStrongPassword("alllowercase1") {
		t.Error("password without uppercase accepted")
	}
	if IsStrongPassword("NoDigitsHere") {
		t.Error("password without digits accepted")
	}
	if !IsStrongPassword("Sup3rSecret") {
		t.Error("valid password rejected")
	}
}

func TestSanitizeInput(t *testing.T) {
	if got := SanitizeInput("  hello  "); got != "hello" {
		t.Errorf("SanitizeInput trim = %q", got)
	}
	if got := SanitizeInput("a\x00b"); got != "ab" {
		t.Errorf("SanitizeInput null byte = %q", got)
	}
}
