package password_test

import (
	"strings"
	"testing"

	"github.com/vetchium/idcore/internal/security/password"
)

func TestHashVerifyRoundtrip(t *testing.T) {
	// Parámetros livianos: el roundtrip no necesita costo de producción.
	p := password.Params{Memory: 8 * 1024, Time: 1, Parallelism: 1, KeyLen: 32}

	phc, err := password.Hash(p, "Correct-Horse-Battery-1")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if !strings.HasPrefix(phc, "$argon2id$v=19$") {
		t.Fatalf("formato PHC inesperado: %q", phc)
	}
	if !password.Verify("Correct-Horse-Battery-1", phc) {
		t.Fatal("Verify falso para el password correcto")
	}
	if password.Verify("otro password", phc) {
		t.Fatal("Verify verdadero para un password incorrecto")
	}
}

func TestVerifyMalformed(t *testing.T) {
	for _, phc := range []string{
		"",
		"plaintext",
		"$argon2id$v=19$m=8192,t=1,p=1$!!!$AAAA",
		"$bcrypt$whatever",
	} {
		if password.Verify("x", phc) {
			t.Errorf("Verify aceptó hash malformado %q", phc)
		}
	}
}

func TestPolicyValidate(t *testing.T) {
	pol := password.Policy{
		MinLength:    12,
		RequireUpper: true,
		RequireLower: true,
		RequireDigit: true,
	}

	cases := []struct {
		name    string
		in      string
		ok      bool
		reasons []string
	}{
		{"válido", "Abcdefghijk1", true, nil},
		{"corto", "Ab1", false, []string{"too_short"}},
		{"sin mayúscula", "abcdefghijk1", false, []string{"missing_upper"}},
		{"sin dígito", "Abcdefghijkl", false, []string{"missing_digit"}},
		{"varias razones", "ab", false, []string{"too_short", "missing_upper", "missing_digit"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ok, reasons := pol.Validate(tc.in)
			if ok != tc.ok {
				t.Fatalf("ok=%v, quiero %v (reasons=%v)", ok, tc.ok, reasons)
			}
			for _, want := range tc.reasons {
				found := false
				for _, r := range reasons {
					if r == want {
						found = true
					}
				}
				if !found {
					t.Errorf("falta la razón %q en %v", want, reasons)
				}
			}
		})
	}
}

func TestPolicySymbolRequirement(t *testing.T) {
	pol := password.Policy{MinLength: 8, RequireSymbol: true}
	if ok, _ := pol.Validate("abcdefgh"); ok {
		t.Fatal("aceptó password sin símbolo")
	}
	if ok, reasons := pol.Validate("abcdefg!"); !ok {
		t.Fatalf("rechazó password con símbolo: %v", reasons)
	}
}
