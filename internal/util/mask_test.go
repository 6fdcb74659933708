package util

import "testing"

func TestMaskEmail(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"juan.perez@example.com", "j…@e….com"},
		{"  Ana@Acme.IO ", "a…@a….io"},
		{"a@b.co", "a@b.co"},
		{"x@sub.dominio.com", "x@s….dominio.com"},
		{"", ""},
		{"ab", "***"},
		{"sinArroba", "s…a"},
	}
	for _, tc := range cases {
		if got := MaskEmail(tc.in); got != tc.want {
			t.Errorf("MaskEmail(%q) = %q, quería %q", tc.in, got, tc.want)
		}
	}
}
