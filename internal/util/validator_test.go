package util

import "testing"

func TestNormalizeEmail(t *testing.T) {
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"  Ann@Example.com ", "ann@example.com", true},
		{"", "", false},
		{"not-an-email", "", false},
		{"Ann <ann@example.com>", "", false},
	}
	for _, tc := range cases {
		got, err := NormalizeEmail(tc.in)
		if (err == nil) != tc.ok {
			t.Fatalf("NormalizeEmail(%q) err = %v, want ok=%v", tc.in, err, tc.ok)
		}
		if got != tc.want {
			t.Fatalf("NormalizeEmail(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestValidatePassword(t *testing.T) {
	if err := ValidatePassword("1234567"); err == nil {
		t.Fatal("expected short password to fail")
	}
	if err := ValidatePassword("12345678"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestRequireString(t *testing.T) {
	if _, err := RequireString("   "); err == nil {
		t.Fatal("expected blank value to fail")
	}
	got, err := RequireString("  Asha ")
	if err != nil || got != "Asha" {
		t.Fatalf("RequireString = %q, %v", got, err)
	}
}
