package inmemory

import (
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/dvloznov/pocketsync/internal/store"
	"github.com/dvloznov/pocketsync/internal/store/storetest"
)

func TestStore(t *testing.T) {
	suite.Run(t, &storetest.Suite{
		NewStore: func() store.Store { return NewStore() },
	})
}
