package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"

	"github.com/dvloznov/pocketsync/internal/apperr"
	"github.com/dvloznov/pocketsync/internal/domain"
	"github.com/dvloznov/pocketsync/internal/oauthcallback"
	"github.com/dvloznov/pocketsync/internal/providers"
	"github.com/dvloznov/pocketsync/internal/providers/registry"
	"github.com/dvloznov/pocketsync/internal/store"
)

// setFlags collects repeated -set key=value options.
type setFlags []string

func (s *setFlags) String() string { return strings.Join(*s, ",") }

func (s *setFlags) Set(v string) error {
	*s = append(*s, v)
	return nil
}

func oneProvider(cmd string, pos []string) (string, error) {
	switch len(pos) {
	case 0:
		return "", apperr.Param("Missing provider argument. Usage: pocketsync %s <provider>", cmd)
	case 1:
		return pos[0], nil
	default:
		return "", apperr.Param("%s accepts one provider, got %d arguments", cmd, len(pos))
	}
}

func (c *cli) runConfig(ctx context.Context, args []string) error {
	fs, user := c.newFlagSet("config")
	var sets setFlags
	fs.Var(&sets, "set", "Set a config option as key=value; repeatable. An empty value is prompted for")
	replace := fs.Bool("replace", false, "Replace the existing config instead of merging")
	pos, err := parseArgs(fs, args)
	if err != nil {
		return err
	}
	name, err := oneProvider("config", pos)
	if err != nil {
		return err
	}

	a, err := c.open(ctx, *user)
	if err != nil {
		return err
	}
	defer c.closeApp(ctx, a)

	inst, err := a.Loader.Load(ctx, name)
	if err != nil {
		return err
	}
	cfg := inst.Env.Config

	if len(sets) > 0 {
		partial := make(map[string]any, len(sets))
		for _, opt := range sets {
			key, value, _ := strings.Cut(opt, "=")
			key = strings.TrimSpace(key)
			if key == "" {
				return apperr.Param("Invalid config option %q. Use key=value", opt)
			}
			if value == "" {
				if value, err = c.terminal().Input(ctx, fmt.Sprintf("Enter %s:", key), ""); err != nil {
					return fmt.Errorf("runConfig: %w", err)
				}
			}
			partial[key] = value
		}
		if err := cfg.Set(ctx, partial, providers.SetOptions{Replace: *replace}); err != nil {
			return err
		}
		fmt.Fprintln(c.out, "Config options saved")
		return nil
	}

	all, err := cfg.All(ctx)
	if err != nil {
		return err
	}
	out, err := json.MarshalIndent(all, "", "  ")
	if err != nil {
		return fmt.Errorf("runConfig: encoding config: %w", err)
	}
	fmt.Fprintln(c.out, string(out))
	return nil
}

// fetchAccounts downloads the accounts of the provider called name.
func (c *cli) fetchAccounts(ctx context.Context, loader *registry.Loader, name, role string) ([]*domain.Account, error) {
	inst, err := loader.Load(ctx, name)
	if err != nil {
		return nil, err
	}
	if role != "" {
		fmt.Fprintf(c.out, "Fetching %s accounts for %s. Please wait ...\n", role, name)
	} else {
		fmt.Fprintf(c.out, "Fetching accounts for %s. Please wait ...\n", name)
	}
	accounts, err := inst.Adapter.FetchAccounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching %s accounts: %w", name, err)
	}
	if len(accounts) == 0 {
		fmt.Fprintf(c.out, "No accounts found on %s\n", name)
	}
	return accounts, nil
}

func (c *cli) runAccounts(ctx context.Context, args []string) error {
	fs, user := c.newFlagSet("accounts")
	pos, err := parseArgs(fs, args)
	if err != nil {
		return err
	}
	name, err := oneProvider("accounts", pos)
	if err != nil {
		return err
	}

	a, err := c.open(ctx, *user)
	if err != nil {
		return err
	}
	defer c.closeApp(ctx, a)

	accounts, err := c.fetchAccounts(ctx, a.Loader, name, "")
	if err != nil || len(accounts) == 0 {
		return err
	}
	w := tabwriter.NewWriter(c.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "Name\tCurrency\tProvider ID")
	for _, acc := range accounts {
		fmt.Fprintf(w, "%s\t%s\t%s\n", acc.Name, acc.Currency, acc.ExternalRef)
	}
	return w.Flush()
}

func (c *cli) runCategories(ctx context.Context, args []string) error {
	fs, user := c.newFlagSet("categories")
	pos, err := parseArgs(fs, args)
	if err != nil {
		return err
	}
	name, err := oneProvider("categories", pos)
	if err != nil {
		return err
	}

	a, err := c.open(ctx, *user)
	if err != nil {
		return err
	}
	defer c.closeApp(ctx, a)

	inst, err := a.Loader.Load(ctx, name)
	if err != nil {
		return err
	}
	source, ok := inst.Adapter.(providers.CategorySource)
	if !ok {
		return apperr.Param("Provider %s does not have categories", name)
	}

	fmt.Fprintf(c.out, "Fetching categories from %s. Please wait ...\n", name)
	categories, err := source.FetchCategories(ctx)
	if err != nil {
		return fmt.Errorf("runCategories: %w", err)
	}
	w := tabwriter.NewWriter(c.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "Category\tProvider ID")
	for _, cat := range categories {
		fmt.Fprintf(w, "%s\t%s\n", strings.Join(cat.Tree, " > "), cat.ExternalRef)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "%d categories stored for %s\n", len(categories), name)
	return nil
}

func (c *cli) runMapCategory(ctx context.Context, args []string) error {
	fs, user := c.newFlagSet("map-category")
	pos, err := parseArgs(fs, args)
	if err != nil {
		return err
	}
	if len(pos) != 4 {
		return apperr.Param("Usage: pocketsync map-category <source provider> <source category id> <target provider> <target category id>")
	}

	a, err := c.open(ctx, *user)
	if err != nil {
		return err
	}
	defer c.closeApp(ctx, a)

	left, err := c.category(ctx, a.Loader, a.Store, pos[0], pos[1])
	if err != nil {
		return err
	}
	right, err := c.category(ctx, a.Loader, a.Store, pos[2], pos[3])
	if err != nil {
		return err
	}
	if left.ProviderID == right.ProviderID {
		return apperr.Param("Categories must belong to different providers")
	}
	if err := a.Store.MapCategory(ctx, left.ID, right.ID); err != nil {
		return fmt.Errorf("runMapCategory: %w", err)
	}
	fmt.Fprintf(c.out, "Mapped %s: %s to %s: %s\n", pos[0], left.Name, pos[2], right.Name)
	return nil
}

func (c *cli) category(ctx context.Context, loader *registry.Loader, st store.Store, provider, ref string) (*domain.Category, error) {
	inst, err := loader.Load(ctx, provider)
	if err != nil {
		return nil, err
	}
	cat, err := st.CategoryByExternalRef(ctx, inst.Env.Owner(), ref)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.Param("Category %s not found on %s. Run `pocketsync categories %s` first", ref, provider, provider)
	}
	if err != nil {
		return nil, fmt.Errorf("category: %w", err)
	}
	return cat, nil
}

func (c *cli) runAuth(ctx context.Context, args []string) error {
	fs, user := c.newFlagSet("auth")
	addr := fs.String("addr", c.cfg.OAuthListenAddr, "Address the redirect URI points at")
	timeout := fs.Duration("timeout", 5*time.Minute, "How long to wait for the redirect")
	pos, err := parseArgs(fs, args)
	if err != nil {
		return err
	}
	name, err := oneProvider("auth", pos)
	if err != nil {
		return err
	}

	a, err := c.open(ctx, *user)
	if err != nil {
		return err
	}
	defer c.closeApp(ctx, a)

	inst, err := a.Loader.Load(ctx, name)
	if err != nil {
		return err
	}
	authz, ok := inst.Adapter.(providers.Authorizer)
	if !ok {
		return apperr.Param("Provider %s does not use OAuth authorisation", name)
	}

	state := uuid.NewString()
	authURL, err := authz.AuthCodeURL(ctx, state)
	if err != nil {
		return err
	}
	receiver, err := oauthcallback.Listen(*addr, state, inst.Env.Log)
	if err != nil {
		return fmt.Errorf("runAuth: %w", err)
	}

	fmt.Fprintf(c.out, "Open this URL to authorise %s:\n%s\n", name, authURL)
	waitCtx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()
	code, err := receiver.Wait(waitCtx)
	if err != nil {
		return fmt.Errorf("runAuth: waiting for redirect: %w", err)
	}

	if err := authz.Exchange(ctx, code); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "%s authorised\n", name)
	return nil
}

func (c *cli) runProviders(ctx context.Context, args []string) error {
	fs, user := c.newFlagSet("providers")
	if _, err := parseArgs(fs, args); err != nil {
		return err
	}

	a, err := c.open(ctx, *user)
	if err != nil {
		return err
	}
	defer c.closeApp(ctx, a)

	lines := make([]string, 0)
	for _, m := range a.Loader.Providers() {
		var roles []string
		if m.IsSource {
			roles = append(roles, "source")
		}
		if m.IsTarget {
			roles = append(roles, "target")
		}
		lines = append(lines, fmt.Sprintf("%s (%s)", m.Name, strings.Join(roles, ", ")))
	}
	fmt.Fprintf(c.out, "Providers available:\n- %s\n", strings.Join(lines, "\n- "))
	return nil
}
