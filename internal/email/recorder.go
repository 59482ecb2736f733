package email

import (
	"context"
	"sync"
)

// Recorded es un envío capturado por el Recorder.
type Recorded struct {
	Recipient string
	Kind      TemplateKind
	Params    Params
}

// Recorder implementa Notifier acumulando los envíos en memoria.
// Usado en tests y en modo dev sin SMTP.
type Recorder struct {
	mu   sync.Mutex
	sent []Recorded
}

func NewRecorder() *Recorder { return &Recorder{} }

func (r *Recorder) Send(_ context.Context, recipient string, kind TemplateKind, params Params) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := make(Params, len(params))
	for k, v := range params {
		cp[k] = v
	}
	r.sent = append(r.sent, Recorded{Recipient: recipient, Kind: kind, Params: cp})
	return nil
}

// Sent retorna una copia de los envíos capturados.
func (r *Recorder) Sent() []Recorded {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Recorded, len(r.sent))
	copy(out, r.sent)
	return out
}

// LastTo retorna el último envío al destinatario, si existe.
func (r *Recorder) LastTo(recipient string) (Recorded, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.sent) - 1; i >= 0; i-- {
		if r.sent[i].Recipient == recipient {
			return r.sent[i], true
		}
	}
	return Recorded{}, false
}
