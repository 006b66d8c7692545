// Package host adapts the vault and the Anthropic client to the narrow
// interfaces the cchat stores depend on.
package host

import (
	"context"
	"log/slog"

	"github.com/theirongolddev/cchat/internal/anthropic"
	"github.com/theirongolddev/cchat/internal/store"
)

// Bridge is the single capability surface handed to the stores: secret
// storage plus the two network calls.
type Bridge struct {
	vault  *store.Vault
	client *anthropic.Client
	log    *slog.Logger
}

// New returns a bridge over vault and client.
func New(vault *store.Vault, client *anthropic.Client, logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{vault: vault, client: client, log: logger}
}

// GetSecret returns the secret stored for a profile.
func (b *Bridge) GetSecret(ctx context.Context, profileID string) (string, error) {
	return b.vault.GetSecret(ctx, profileID)
}

// SetSecret stores the secret for a profile.
func (b *Bridge) SetSecret(ctx context.Context, profileID, secret string) error {
	return b.vault.SetSecret(ctx, profileID, secret)
}

// DeleteSecret removes the secret for a profile.
func (b *Bridge) DeleteSecret(ctx context.Context, profileID string) error {
	return b.vault.DeleteSecret(ctx, profileID)
}

// ValidateCredential checks a secret against the model listing endpoint.
func (b *Bridge) ValidateCredential(ctx context.Context, secret string) error {
	models, err := b.client.ListModels(ctx, secret)
	if err != nil {
		b.log.Debug("credential validation failed", "key", MaskKey(secret), "error", err)
		return err
	}
	b.log.Debug("credential validated", "key", MaskKey(secret), "models", len(models))
	return nil
}

// SendChatRequest posts one completion request.
func (b *Bridge) SendChatRequest(ctx context.Context, secret string, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	b.log.Debug("sending chat request", "key", MaskKey(secret), "model", req.Model, "messages", len(req.Messages))
	resp, err := b.client.CreateMessage(ctx, secret, req)
	if err != nil {
		return nil, err
	}
	b.log.Debug("chat response",
		"id", resp.ID,
		"stop_reason", resp.StopReason,
		"input_tokens", resp.Usage.InputTokens,
		"output_tokens", resp.Usage.OutputTokens,
	)
	return resp, nil
}

// MaskKey hides all but the edges of an API key for logging.
func MaskKey(key string) string {
	if len(key) <= 12 {
		return "***"
	}
	return key[:7] + "..." + key[len(key)-4:]
}
