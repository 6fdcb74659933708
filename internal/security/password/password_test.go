package password

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// Parámetros chicos para que los tests no quemen CPU; el formato PHC es el
// mismo que con los default.
var testParams = Params{Memory: 8 * 1024, Time: 1, Parallelism: 1, KeyLen: 32}

func TestHashAndVerify(t *testing.T) {
	phc, err := Hash(testParams, "correct horse battery staple")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if !strings.HasPrefix(phc, "$argon2id$v=19$m=8192,t=1,p=1$") {
		t.Fatalf("unexpected PHC prefix: %s", phc)
	}
	if !Verify("correct horse battery staple", phc) {
		t.Fatal("verify must accept the original password")
	}
	if Verify("wrong password", phc) {
		t.Fatal("verify must reject a different password")
	}
}

func TestHashSaltsDiffer(t *testing.T) {
	a, _ := Hash(testParams, "same")
	b, _ := Hash(testParams, "same")
	if a == b {
		t.Fatal("two hashes of the same password must differ (random salt)")
	}
}

func TestHashEmptyPassword(t *testing.T) {
	if _, err := Hash(testParams, ""); err == nil {
		t.Fatal("empty password must be rejected")
	}
}

func TestVerifyMalformed(t *testing.T) {
	// Hash roto cuenta como no-match, nunca panic ni error.
	for _, phc := range []string{
		"",
		"plaintext",
		"$argon2id$v=19$m=8192,t=1,p=1$salt",
		"$bcrypt$v=19$m=8192,t=1,p=1$c2FsdA$ZGsZGs",
		"$argon2id$v=19$garbage$c2FsdA$ZGsZGs",
		"$argon2id$v=19$m=8192,t=1,p=1$!!notb64!!$ZGsZGs",
	} {
		if Verify("whatever", phc) {
			t.Fatalf("malformed hash must never verify: %q", phc)
		}
	}
}

func TestPolicyValidate(t *testing.T) {
	pol := Policy{MinLength: 8, RequireUpper: true, RequireDigit: true}

	if ok, _ := pol.Validate("Passw0rd"); !ok {
		t.Fatal("conforming password must pass")
	}

	cases := map[string]string{
		"Sh0rt":    "too_short",
		"passw0rd": "missing_upper",
		"Password": "missing_digit",
	}
	for pwd, wantReason := range cases {
		ok, reasons := pol.Validate(pwd)
		if ok {
			t.Fatalf("%q must fail", pwd)
		}
		found := false
		for _, r := range reasons {
			if r == wantReason {
				found = true
			}
		}
		if !found {
			t.Fatalf("%q: want reason %s, got %v", pwd, wantReason, reasons)
		}
	}
}

func TestBlacklist(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "blacklist.txt")
	content := "# comunes\npassword123\nQWERTY\n\n  hunter2  \n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	bl, err := LoadBlacklist(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	for _, p := range []string{"password123", "qwerty", "HUNTER2"} {
		if !bl.Contains(p) {
			t.Fatalf("%q must be blacklisted", p)
		}
	}
	if bl.Contains("# comunes") {
		t.Fatal("comments must not be entries")
	}
	if bl.Contains("unrelated") {
		t.Fatal("unlisted password must pass")
	}

	var nilBL *Blacklist
	if nilBL.Contains("anything") {
		t.Fatal("nil blacklist must not block")
	}
}
