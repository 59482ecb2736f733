// Package tokens implementa el codec de tokens bearer opacos.
//
// Un token es un secreto aleatorio de largo fijo codificado en hex
// minúscula (64 chars para 32 bytes de entropía). Los flujos scoped a
// un tenant agency anteponen un código de región corto en mayúsculas
// más un guión (ej. "AGY1-<hex>"); los flujos del tenant admin usan el
// hex pelado. Cualquier malformación se reporta como inválido sin
// distinguir la causa, para no filtrar oráculos.
package tokens

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"math/big"
)

// SecretBytes es la entropía estándar de los secretos opacos.
const SecretBytes = 32

// secretHexLen es el largo exacto del secreto en hex.
const secretHexLen = SecretBytes * 2

// NewSecret genera un secreto aleatorio de lengthBytes bytes en hex
// minúscula.
func NewSecret(lengthBytes int) (string, error) {
	if lengthBytes <= 0 {
		lengthBytes = SecretBytes
	}
	b := make([]byte, lengthBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// NewOneTimeCode genera un código numérico de seis dígitos para TFA,
// con crypto/rand (sin sesgo módulo: big.Int sobre [0, 10^6)).
func NewOneTimeCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

// Encode arma el token presentable: prefijo de región opcional + secreto.
// regionPrefix vacío produce el secreto pelado (flujos admin).
func Encode(secret, regionPrefix string) string {
	if regionPrefix == "" {
		return secret
	}
	return regionPrefix + "-" + secret
}

// Decode separa prefijo y secreto validando la forma completa:
//   - secreto: exactamente 64 chars hex minúscula
//   - prefijo: tres letras mayúsculas + un dígito, o ausente
//
// Cualquier otra forma retorna ok=false. El caller trata ok=false igual
// que "no encontrado".
func Decode(token string) (regionPrefix, secret string, ok bool) {
	switch len(token) {
	case secretHexLen:
		if !isLowerHex(token) {
			return "", "", false
		}
		return "", token, true
	case secretHexLen + 5: // "ABC1-" + secreto
		if !isRegionPrefix(token[:4]) || token[4] != '-' {
			return "", "", false
		}
		secret = token[5:]
		if !isLowerHex(secret) {
			return "", "", false
		}
		return token[:4], secret, true
	default:
		return "", "", false
	}
}

// NewRegionCode genera un prefijo de región aleatorio con la forma que
// Decode acepta: tres letras mayúsculas más un dígito.
func NewRegionCode() (string, error) {
	const letters = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	out := make([]byte, 4)
	for i := 0; i < 3; i++ {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(letters))))
		if err != nil {
			return "", err
		}
		out[i] = letters[n.Int64()]
	}
	n, err := rand.Int(rand.Reader, big.NewInt(10))
	if err != nil {
		return "", err
	}
	out[3] = byte('0' + n.Int64())
	return string(out), nil
}

// Hash retorna sha256(s) en hex, la forma en que los secretos se
// persisten. Nunca se guarda el secreto en claro.
func Hash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// Equal compara dos strings en tiempo constante.
func Equal(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// EqualHashed compara sha256(presented) contra un hash almacenado en
// tiempo constante. Útil para códigos cortos tipeados por humanos.
func EqualHashed(presented, storedHash string) bool {
	return Equal(Hash(presented), storedHash)
}

func isLowerHex(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return len(s) > 0
}

func isRegionPrefix(s string) bool {
	if len(s) != 4 {
		return false
	}
	for i := 0; i < 3; i++ {
		if s[i] < 'A' || s[i] > 'Z' {
			return false
		}
	}
	return s[3] >= '0' && s[3] <= '9'
}
