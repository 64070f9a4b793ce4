package freeagent

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"

	"github.com/dvloznov/pocketsync/internal/providers"
)

// tokenRejected is the message FreeAgent returns for an expired access token.
const tokenRejected = "Access token not recognised"

func (a *Adapter) oauthConfig(ctx context.Context, keys ...string) (*oauth2.Config, error) {
	cfg, err := a.env.Config.Require(ctx, append([]string{"identifier"}, keys...)...)
	if err != nil {
		return nil, err
	}
	return &oauth2.Config{
		ClientID:     cfg["identifier"],
		ClientSecret: cfg["secret"],
		RedirectURL:  cfg["redirectUri"],
		Endpoint: oauth2.Endpoint{
			AuthURL:   a.baseURL + "/approve_app",
			TokenURL:  a.baseURL + "/token_endpoint",
			AuthStyle: oauth2.AuthStyleInHeader,
		},
	}, nil
}

func (a *Adapter) oauthContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, a.env.HTTPClient())
}

// IsTransientAuth implements the authretry.Refresher interface.
func (a *Adapter) IsTransientAuth(err error) bool {
	h, ok := providers.AsHTTPError(err)
	return ok && h.DecodedString("errors", "error", "message") == tokenRejected
}

// Refresh implements the authretry.Refresher interface. It trades the stored
// refresh token for a new access token and merges it into the config.
func (a *Adapter) Refresh(ctx context.Context) error {
	log := a.env.Log
	log.Warn().Msg("Invalid access token, attempting to renew")

	conf, err := a.oauthConfig(ctx, "secret", "refreshToken")
	if err != nil {
		return err
	}
	refreshToken, err := a.env.Config.String(ctx, "refreshToken")
	if err != nil {
		return err
	}

	src := conf.TokenSource(a.oauthContext(ctx), &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		a.env.Metrics.RecordAuthRefresh(Name, false)
		var re *oauth2.RetrieveError
		if errors.As(err, &re) && re.Response != nil && re.Response.StatusCode == http.StatusUnauthorized {
			if u, uerr := a.AuthCodeURL(ctx, ""); uerr == nil {
				log.Warn().Str("reauth_url", u).Msg("Renew access token failed, re-authorise the app")
			}
		}
		return fmt.Errorf("Refresh: renew access token failed: %w", err)
	}

	if err := a.saveToken(ctx, tok); err != nil {
		return err
	}
	a.env.Metrics.RecordAuthRefresh(Name, true)
	log.Debug().Msg("Access token renewed")
	return nil
}

// AuthCodeURL implements the providers.Authorizer interface.
func (a *Adapter) AuthCodeURL(ctx context.Context, state string) (string, error) {
	conf, err := a.oauthConfig(ctx, "redirectUri")
	if err != nil {
		return "", err
	}
	return conf.AuthCodeURL(state), nil
}

// Exchange implements the providers.Authorizer interface.
func (a *Adapter) Exchange(ctx context.Context, code string) error {
	conf, err := a.oauthConfig(ctx, "secret", "redirectUri")
	if err != nil {
		return err
	}
	tok, err := conf.Exchange(a.oauthContext(ctx), code)
	if err != nil {
		return fmt.Errorf("Exchange: fetching access token: %w", err)
	}
	return a.saveToken(ctx, tok)
}

func (a *Adapter) saveToken(ctx context.Context, tok *oauth2.Token) error {
	partial := map[string]any{"accessToken": tok.AccessToken}
	if tok.RefreshToken != "" {
		partial["refreshToken"] = tok.RefreshToken
	}
	if !tok.Expiry.IsZero() {
		partial["expiresIn"] = int(time.Until(tok.Expiry).Round(time.Second).Seconds())
	}
	if err := a.env.Config.Set(ctx, partial, providers.SetOptions{}); err != nil {
		return fmt.Errorf("saveToken: %w", err)
	}
	return nil
}
