// Package email define el colaborador Notifier del core.
//
// El core nunca renderiza templates: entrega un kind más parámetros y
// el Notifier resuelve asunto, cuerpo y envío. El contrato de orden
// importa: los engines llaman Send recién después de persistir, nunca
// antes.
package email

import "context"

// TemplateKind identifica el mensaje a enviar.
type TemplateKind string

const (
	KindTFACode         TemplateKind = "tfa_code"
	KindInvite          TemplateKind = "invite"
	KindSignup          TemplateKind = "signup"
	KindPasswordReset   TemplateKind = "password_reset"
	KindDomainChallenge TemplateKind = "domain_challenge"
)

// Params son los parámetros del template (token, code, domain, etc.).
type Params map[string]string

// Notifier envía un mensaje templado a un destinatario.
// Fire-and-forget desde la perspectiva del engine: un error se propaga
// pero el engine jamás reintenta por su cuenta.
type Notifier interface {
	Send(ctx context.Context, recipient string, kind TemplateKind, params Params) error
}
