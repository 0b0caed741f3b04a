package settings

import (
	"context"

	"flock/internal/storage"
	dErrors "flock/pkg/domain-errors"
)

// storeKey is where the persisted settings blob lives.
const storeKey = "settings"

// Provider hands out a read-only snapshot per call.
type Provider interface {
	Get(ctx context.Context) (Settings, error)
}

// Static always returns the same snapshot.
type Static Settings

func (s Static) Get(context.Context) (Settings, error) {
	return Settings(s), nil
}

// StoreProvider reads settings from the blob store, falling back to a seed
// when nothing has been persisted.
type StoreProvider struct {
	tx   *storage.Runner
	seed Settings
}

func NewStoreProvider(tx *storage.Runner, seed Settings) *StoreProvider {
	return &StoreProvider{tx: tx, seed: seed}
}

func (p *StoreProvider) Get(ctx context.Context) (Settings, error) {
	var out Settings
	err := p.tx.RunInTx(ctx, func(ctx context.Context, kv storage.Store) error {
		var err error
		out, err = p.load(ctx, kv)
		return err
	})
	return out, err
}

// Update applies a patch and persists the result. An invalid patch leaves the
// stored settings untouched.
func (p *StoreProvider) Update(ctx context.Context, patch Patch) (Settings, error) {
	var out Settings
	err := p.tx.RunInTx(ctx, func(ctx context.Context, kv storage.Store) error {
		current, err := p.load(ctx, kv)
		if err != nil {
			return err
		}
		next, err := current.Apply(patch)
		if err != nil {
			return err
		}
		if err := storage.PutJSON(ctx, kv, storeKey, next); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to save settings")
		}
		out = next
		return nil
	})
	return out, err
}

func (p *StoreProvider) load(ctx context.Context, kv storage.Store) (Settings, error) {
	s, found, err := storage.GetJSON[Settings](ctx, kv, storeKey)
	if err != nil {
		return Settings{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load settings")
	}
	if !found {
		return p.seed, nil
	}
	return s, nil
}
