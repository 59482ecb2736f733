// Package pagination implementa paginación keyset con cursores opacos.
//
// El orden es total sobre una clave estable (clave primaria de orden +
// ID como desempate), de modo que inserciones concurrentes nunca
// reordenan lo ya devuelto. El contrato central: concatenar páginas
// siguiendo NextCursor hasta HasMore=false produce cada ítem
// exactamente una vez.
package pagination

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/vetchium/idcore/internal/domain"
)

// MaxLimit es el tope del tamaño de página.
const MaxLimit = 100

// Cursor es la posición "último visto" de un listado: la clave de
// orden y el ID de desempate de la última fila devuelta.
type Cursor struct {
	Key string `json:"k"`
	ID  string `json:"id"`
}

// IsZero informa si el cursor apunta al inicio.
func (c Cursor) IsZero() bool { return c.Key == "" && c.ID == "" }

// Request es la entrada común de toda operación de listado.
type Request struct {
	Limit  int
	Cursor string
}

// Page es la salida común de toda operación de listado.
type Page[T any] struct {
	Items      []T
	HasMore    bool
	NextCursor string
}

// Encode serializa un cursor a su forma opaca (base64url de JSON).
func Encode(c Cursor) string {
	b, _ := json.Marshal(c)
	return base64.RawURLEncoding.EncodeToString(b)
}

// Decode valida y deserializa un cursor. Cursor vacío = inicio.
// Un cursor sintácticamente inválido es un error de validación, nunca
// un "empezar de cero" silencioso.
func Decode(s string) (Cursor, error) {
	if s == "" {
		return Cursor{}, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return Cursor{}, fmt.Errorf("malformed cursor: %w", domain.ErrInvalidInput)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	var c Cursor
	if err := dec.Decode(&c); err != nil {
		return Cursor{}, fmt.Errorf("malformed cursor: %w", domain.ErrInvalidInput)
	}
	if c.ID == "" {
		return Cursor{}, fmt.Errorf("malformed cursor: %w", domain.ErrInvalidInput)
	}
	return c, nil
}

// Validate chequea el límite y decodifica el cursor de la request.
// Toda validación ocurre antes de tocar el repositorio.
func (r Request) Validate() (Cursor, error) {
	if r.Limit < 1 || r.Limit > MaxLimit {
		return Cursor{}, fmt.Errorf("limit must be between 1 and %d: %w", MaxLimit, domain.ErrInvalidInput)
	}
	return Decode(r.Cursor)
}

// Build arma la página a partir de rows obtenidas con limit+1.
// Si vinieron limit+1 filas hay más datos: se recorta y NextCursor
// codifica la clave de la fila limit-ésima.
func Build[T any](rows []T, limit int, key func(T) Cursor) Page[T] {
	if len(rows) <= limit {
		return Page[T]{Items: rows, HasMore: false, NextCursor: ""}
	}
	items := rows[:limit]
	return Page[T]{
		Items:      items,
		HasMore:    true,
		NextCursor: Encode(key(items[len(items)-1])),
	}
}

// After informa si la fila (key, id) está estrictamente después del
// cursor en el orden (key, id). Con cursor cero todo califica.
func (c Cursor) After(key, id string) bool {
	if c.IsZero() {
		return true
	}
	if key != c.Key {
		return key > c.Key
	}
	return id > c.ID
}
