package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dvloznov/pocketsync/internal/apperr"
	"github.com/dvloznov/pocketsync/internal/domain"
	"github.com/dvloznov/pocketsync/internal/store"
)

func paramNotSource(provider string) error {
	return apperr.Param("Provider %s cannot be used as a sync source", provider)
}

func paramNotTarget(provider string) error {
	return apperr.Param("Provider %s cannot be used as a sync target", provider)
}

func profileNames(profiles []domain.SyncProfile) []string {
	names := make([]string, 0, len(profiles))
	for _, p := range profiles {
		names = append(names, p.Name)
	}
	return names
}

// ResolveProfiles picks the profiles a sync command runs: all of them with
// runAll, the one called name, or one chosen at the prompt.
func (e *Engine) ResolveProfiles(ctx context.Context, userID int64, name string, runAll bool, opts Options) ([]domain.SyncProfile, error) {
	profiles, err := e.Store.ProfilesByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ResolveProfiles: %w", err)
	}
	if len(profiles) == 0 {
		return nil, apperr.Config("No sync profiles available. Run `pocketsync create-sync` to create a new one")
	}
	names := profileNames(profiles)

	if name != "" {
		for _, p := range profiles {
			if p.Name == name {
				if runAll {
					return profiles, nil
				}
				return []domain.SyncProfile{p}, nil
			}
		}
		return nil, apperr.Param("Sync profile %s does not exist.\nAvailable sync profiles:\n- %s", name, strings.Join(names, "\n- "))
	}

	if runAll {
		return profiles, nil
	}
	if opts.Unattended || e.Prompt == nil {
		return nil, apperr.Param("Missing sync profile argument")
	}
	i, err := e.Prompt.Select(ctx, "Select a sync profile:", names)
	if err != nil {
		return nil, fmt.Errorf("ResolveProfiles: prompt: %w", err)
	}
	if i < 0 || i >= len(profiles) {
		return nil, apperr.Param("Invalid sync profile selection")
	}
	return []domain.SyncProfile{profiles[i]}, nil
}

// RunProfiles runs profiles in order. The first error aborts the rest.
func (e *Engine) RunProfiles(ctx context.Context, profiles []domain.SyncProfile, opts Options) error {
	for i := range profiles {
		p := &profiles[i]
		if i > 0 {
			e.printf("-")
		}
		e.printf("Running sync profile %s", p.Name)
		if err := e.RunSync(ctx, p, opts); err != nil {
			return fmt.Errorf("sync profile %s: %w", p.Name, err)
		}
	}
	return nil
}

// ProfileRequest describes a new sync profile.
type ProfileRequest struct {
	UserID         int64
	Name           string
	Source         *domain.Account
	Target         *domain.Account
	SourceProvider string
	TargetProvider string
}

// DefaultProfileName is the name suggested for a profile between two
// accounts.
func DefaultProfileName(req ProfileRequest) string {
	return fmt.Sprintf("%s: %s >> %s: %s", req.SourceProvider, req.Source.Name, req.TargetProvider, req.Target.Name)
}

// NameTaken reports whether userID already has a profile called name.
func (e *Engine) NameTaken(ctx context.Context, userID int64, name string) (bool, error) {
	_, err := e.Store.ProfileByName(ctx, userID, name)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("NameTaken: %w", err)
	default:
		return true, nil
	}
}

// CreateProfile validates and stores a new profile. An empty name gets
// DefaultProfileName.
func (e *Engine) CreateProfile(ctx context.Context, req ProfileRequest) (*domain.SyncProfile, error) {
	if req.Source == nil || req.Target == nil {
		return nil, apperr.Param("Source and target accounts are required")
	}
	if req.Source.ID == req.Target.ID {
		return nil, apperr.Param("Cannot sync account %s to itself", req.Source.Name)
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = DefaultProfileName(req)
	}

	p := &domain.SyncProfile{
		UserID:          req.UserID,
		Name:            name,
		SourceAccountID: req.Source.ID,
		TargetAccountID: req.Target.ID,
	}
	if err := e.Store.CreateProfile(ctx, p); err != nil {
		if apperr.Is(err, apperr.KindDuplicateName) {
			return nil, err
		}
		return nil, fmt.Errorf("CreateProfile: %w", err)
	}

	e.Log.Info().
		Str("profile", p.Name).
		Int64("source_account_id", p.SourceAccountID).
		Int64("target_account_id", p.TargetAccountID).
		Msg("Sync profile created")
	return p, nil
}
