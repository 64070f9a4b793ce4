package providers

import (
	"net/http"

	"github.com/rs/zerolog"

	"github.com/dvloznov/pocketsync/internal/config"
	"github.com/dvloznov/pocketsync/internal/domain"
	"github.com/dvloznov/pocketsync/internal/ingest"
	"github.com/dvloznov/pocketsync/internal/metrics"
	"github.com/dvloznov/pocketsync/internal/store"
)

// Env is everything an adapter needs from the process. Adapters receive it
// in their constructor and must not reach for globals.
type Env struct {
	Log      zerolog.Logger
	Store    store.Store
	User     domain.User
	Provider domain.Provider
	Config   *Config
	HTTP     *http.Client
	Metrics  *metrics.Recorder
	App      config.Config
}

// Owner is the (user, provider) pair raw records and configs are keyed by.
func (e Env) Owner() domain.Owner {
	return domain.Owner{UserID: e.User.ID, ProviderID: e.Provider.ID}
}

// Sink returns the ingest destination for this provider.
func (e Env) Sink() ingest.Sink {
	return ingest.Sink{
		Store:    e.Store,
		Owner:    e.Owner(),
		Provider: e.Provider.Name,
		Log:      e.Log,
		Metrics:  e.Metrics,
	}
}

// HTTPClient returns e.HTTP, or http.DefaultClient when unset.
func (e Env) HTTPClient() *http.Client {
	if e.HTTP != nil {
		return e.HTTP
	}
	return http.DefaultClient
}
