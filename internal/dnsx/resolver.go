// Package dnsx define el colaborador DNSResolver del core.
package dnsx

import (
	"context"
	"net"
	"time"
)

// Resolver retorna los valores TXT de un nombre. Un error del resolver
// (timeout, NXDOMAIN) nunca es fatal para verificación de dominios: el
// caller lo degrada a "todavía PENDING".
type Resolver interface {
	LookupTXT(ctx context.Context, name string) ([]string, error)
}

// NetResolver implementa Resolver sobre net.Resolver con un timeout
// propio por consulta.
type NetResolver struct {
	r       *net.Resolver
	timeout time.Duration
}

// New crea un NetResolver. timeout<=0 usa 5s.
func New(timeout time.Duration) *NetResolver {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &NetResolver{r: net.DefaultResolver, timeout: timeout}
}

func (n *NetResolver) LookupTXT(ctx context.Context, name string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()
	return n.r.LookupTXT(ctx, name)
}

// Static implementa Resolver sobre un mapa fijo. Para tests.
type Static struct {
	Records map[string][]string
	Err     error
}

func (s Static) LookupTXT(_ context.Context, name string) ([]string, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	return s.Records[name], nil
}
