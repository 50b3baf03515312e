package auth

import (
	"context"
	"errors"
	"log/slog"

	"tarefas/internal/logctx"
)

// TokenVerifier turns a raw bearer token into an Identity.
type TokenVerifier interface {
	Verify(ctx context.Context, raw string) (Identity, error)
}

// Authenticator is the per-request gate in front of every task operation.
type Authenticator struct {
	verifier TokenVerifier
	policy   Policy
	logger   *slog.Logger
}

// NewAuthenticator composes a verifier and a policy.
func NewAuthenticator(verifier TokenVerifier, policy Policy, logger *slog.Logger) *Authenticator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Authenticator{verifier: verifier, policy: policy, logger: logger}
}

// Authenticate verifies the bearer token carried by an Authorization header
// value.
func (a *Authenticator) Authenticate(ctx context.Context, header string) (Identity, *Rejection) {
	raw, err := BearerToken(header)
	if err != nil {
		return Identity{}, rejectionFor(err)
	}

	id, err := a.verifier.Verify(ctx, raw)
	if err != nil {
		rej := rejectionFor(err)
		level := slog.LevelWarn
		if rej.Kind == KindKeyFetch {
			level = slog.LevelError
		}
		logctx.From(ctx, a.logger).Log(ctx, level, "token rejected", slog.String("kind", rej.Kind.String()), slog.String("error", err.Error()))
		return Identity{}, rej
	}
	return id, nil
}

// Authorize applies the policy and converts a denial into a Rejection.
func (a *Authenticator) Authorize(ctx context.Context, id Identity, action Action, target Owned) *Rejection {
	d := a.policy.Authorize(id, action, target)
	if d.Allowed {
		return nil
	}
	logctx.From(ctx, a.logger).Info("action denied",
		slog.String("user", id.Username),
		slog.String("action", string(action)),
		slog.String("reason", d.Reason),
	)
	return &Rejection{Kind: KindForbidden, Message: forbiddenMessage(action), Err: errors.New(d.Reason)}
}

func forbiddenMessage(action Action) string {
	switch action {
	case ActionUpdate:
		return "Você não tem permissão para editar esta tarefa"
	case ActionDelete:
		return "Você não tem permissão para deletar esta tarefa"
	default:
		return "Você não tem permissão para esta operação"
	}
}
