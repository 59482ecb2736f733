// Package cache define el contrato de caching best-effort del core.
//
// Backends: memoria (in-process, dev/tests) y Redis (producción). El
// cache nunca es fuente de verdad: perder una key sólo cuesta una ida
// al repositorio. Escribir o borrar no retorna error al caller; un
// backend caído degrada a cache frío.
package cache

import "time"

// Cache es el contrato mínimo que consumen los engines.
type Cache interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte, ttl time.Duration)
	Delete(key string)
}
