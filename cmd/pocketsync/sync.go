package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/dvloznov/pocketsync/internal/apperr"
	"github.com/dvloznov/pocketsync/internal/domain"
	"github.com/dvloznov/pocketsync/internal/engine"
	"github.com/dvloznov/pocketsync/internal/providers"
)

func (c *cli) runSync(ctx context.Context, args []string) error {
	fs, user := c.newFlagSet("sync")
	dryRun := fs.Bool("dry-run", false, "Print the transactions that would be pushed and upload nothing")
	unattended := fs.Bool("unattended", false, "Answer yes to every prompt")
	runAll := fs.Bool("run-all", false, "Run every sync profile in name order")
	list := fs.Bool("list", false, "List sync profiles")
	pos, err := parseArgs(fs, args)
	if err != nil {
		return err
	}
	if len(pos) > 1 {
		return apperr.Param("sync accepts one profile name, got %d", len(pos))
	}
	var name string
	if len(pos) == 1 {
		name = pos[0]
	}

	a, err := c.open(ctx, *user)
	if err != nil {
		return err
	}
	defer c.closeApp(ctx, a)

	if *list {
		profiles, err := a.Store.ProfilesByUser(ctx, a.User.ID)
		if err != nil {
			return fmt.Errorf("runSync: %w", err)
		}
		if len(profiles) == 0 {
			fmt.Fprintln(c.out, "No sync profiles available")
			return nil
		}
		names := make([]string, 0, len(profiles))
		for _, p := range profiles {
			names = append(names, p.Name)
		}
		fmt.Fprintf(c.out, "Sync profiles available:\n- %s\n", strings.Join(names, "\n- "))
		return nil
	}

	opts := engine.Options{DryRun: *dryRun, Unattended: *unattended}
	profiles, err := a.Engine.ResolveProfiles(ctx, a.User.ID, name, *runAll, opts)
	if err != nil {
		return err
	}
	return a.Engine.RunProfiles(ctx, profiles, opts)
}

func (c *cli) runCreateSync(ctx context.Context, args []string) error {
	fs, user := c.newFlagSet("create-sync")
	pos, err := parseArgs(fs, args)
	if err != nil {
		return err
	}
	if len(pos) > 2 {
		return apperr.Param("create-sync accepts a source and a target provider, got %d arguments", len(pos))
	}
	pos = append(pos, "", "")

	a, err := c.open(ctx, *user)
	if err != nil {
		return err
	}
	defer c.closeApp(ctx, a)
	term := c.terminal()

	sourceName, err := c.pickProvider(ctx, pos[0], "source", a.Loader.Names(func(m providers.Meta) bool { return m.IsSource }))
	if err != nil {
		return err
	}
	targetName, err := c.pickProvider(ctx, pos[1], "target", a.Loader.Names(func(m providers.Meta) bool { return m.IsTarget }))
	if err != nil {
		return err
	}

	sourceAccounts, err := c.fetchAccounts(ctx, a.Loader, sourceName, "source")
	if err != nil || len(sourceAccounts) == 0 {
		return err
	}
	targetAccounts, err := c.fetchAccounts(ctx, a.Loader, targetName, "target")
	if err != nil || len(targetAccounts) == 0 {
		return err
	}

	i, err := term.Select(ctx, fmt.Sprintf("Select a source account for %s:", sourceName), accountNames(sourceAccounts))
	if err != nil {
		return fmt.Errorf("runCreateSync: %w", err)
	}
	source := sourceAccounts[i]

	var candidates []*domain.Account
	for _, t := range targetAccounts {
		if t.ID != source.ID {
			candidates = append(candidates, t)
		}
	}
	if len(candidates) == 0 {
		fmt.Fprintf(c.out, "No other accounts found on %s\n", targetName)
		return nil
	}
	i, err = term.Select(ctx, fmt.Sprintf("Select a target account for %s:", targetName), accountNames(candidates))
	if err != nil {
		return fmt.Errorf("runCreateSync: %w", err)
	}
	target := candidates[i]

	if source.Currency != target.Currency {
		ok, err := term.Confirm(ctx, fmt.Sprintf("Warning: account currencies don't match - (%s : %s). Proceed anyway?", source.Currency, target.Currency), false)
		if err != nil {
			return fmt.Errorf("runCreateSync: %w", err)
		}
		if !ok {
			fmt.Fprintln(c.out, "Sync profile creation cancelled")
			return nil
		}
	}

	req := engine.ProfileRequest{
		UserID:         a.User.ID,
		Source:         source,
		Target:         target,
		SourceProvider: sourceName,
		TargetProvider: targetName,
	}
	if req.Name, err = c.profileName(ctx, a.Engine, req); err != nil {
		return err
	}
	p, err := a.Engine.CreateProfile(ctx, req)
	if err != nil {
		return err
	}

	fmt.Fprintf(c.out, "Sync profile '%s' created between %s (%s) and %s (%s)\n", p.Name, sourceName, source.Name, targetName, target.Name)
	fmt.Fprintf(c.out, "Execute `pocketsync sync '%s'` to run\n", p.Name)
	return nil
}

// maxNameAttempts bounds the unique-name prompt.
const maxNameAttempts = 3

func (c *cli) profileName(ctx context.Context, e *engine.Engine, req engine.ProfileRequest) (string, error) {
	def := engine.DefaultProfileName(req)
	var name string
	for range maxNameAttempts {
		var err error
		name, err = c.terminal().Input(ctx, "Enter a unique name for this sync:", def)
		if err != nil {
			return "", fmt.Errorf("profileName: %w", err)
		}
		taken, err := e.NameTaken(ctx, req.UserID, name)
		if err != nil {
			return "", err
		}
		if !taken {
			return name, nil
		}
		fmt.Fprintln(c.out, "Name already exists")
	}
	return "", apperr.DuplicateName(name)
}

// pickProvider validates name against available, or prompts when name is
// empty.
func (c *cli) pickProvider(ctx context.Context, name, role string, available []string) (string, error) {
	if name != "" {
		for _, n := range available {
			if n == name {
				return name, nil
			}
		}
		return "", apperr.Param("%s provider %s does not exist.\nAvailable %s providers:\n- %s",
			capitalize(role), name, role, strings.Join(available, "\n- "))
	}
	i, err := c.terminal().Select(ctx, fmt.Sprintf("Select a %s provider:", role), available)
	if err != nil {
		return "", fmt.Errorf("pickProvider: %w", err)
	}
	return available[i], nil
}

func accountNames(accounts []*domain.Account) []string {
	names := make([]string, 0, len(accounts))
	for _, a := range accounts {
		names = append(names, a.Name)
	}
	return names
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
