// Package content reads the profile bundle from wherever the site keeps it.
// Every Fetch goes to the backing store; nothing is cached in process.
package content

import (
	"context"
	"errors"
	"fmt"

	"github.com/kalambet/folio/internal/config"
	"github.com/kalambet/folio/internal/profile"
	"github.com/kalambet/folio/internal/storage"
)

// Source yields the current profile bundle.
type Source interface {
	Fetch(ctx context.Context) (profile.Bundle, error)
}

// Static always returns the same bundle.
type Static struct {
	Bundle profile.Bundle
}

func (s Static) Fetch(context.Context) (profile.Bundle, error) {
	return s.Bundle, nil
}

// BundleStore is the subset of storage.Store that Local needs.
type BundleStore interface {
	LoadBundle() (profile.Bundle, error)
}

// Local reads the bundle imported into the SQLite store.
type Local struct {
	Store BundleStore
}

// Fetch returns an empty bundle when nothing has been imported yet.
func (l Local) Fetch(ctx context.Context) (profile.Bundle, error) {
	if err := ctx.Err(); err != nil {
		return profile.Bundle{}, err
	}
	b, err := l.Store.LoadBundle()
	if errors.Is(err, storage.ErrNotFound) {
		return profile.Bundle{}, nil
	}
	if err != nil {
		return profile.Bundle{}, fmt.Errorf("loading local bundle: %w", err)
	}
	b.Sort()
	return b, nil
}

// New builds the source selected by cfg.Source. store is required for the
// local source only.
func New(cfg config.ContentConfig, store BundleStore) (Source, error) {
	switch cfg.Source {
	case config.SourceSanity:
		if cfg.ProjectID == "" {
			return nil, errors.New("content.project_id is required when content.source is sanity")
		}
		return NewSanity(SanityOptions{
			ProjectID:  cfg.ProjectID,
			Dataset:    cfg.Dataset,
			APIVersion: cfg.APIVersion,
			UseCDN:     cfg.UseCDN,
			Token:      cfg.Token,
		}), nil
	case config.SourceLocal:
		if store == nil {
			return nil, errors.New("local content source needs a store")
		}
		return Local{Store: store}, nil
	case config.SourceNone, "":
		return Static{}, nil
	default:
		return nil, fmt.Errorf("unknown content source %q", cfg.Source)
	}
}
