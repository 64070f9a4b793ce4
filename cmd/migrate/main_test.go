package main

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/pocketsync/internal/store/postgres"
)

func TestRun_RejectsNonPostgresDSN(t *testing.T) {
	var out bytes.Buffer
	err := run(context.Background(), []string{"-dsn", "memory://"}, &out)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "postgres://")
}

func TestPrintStatus(t *testing.T) {
	at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	migrations := []postgres.Migration{
		{Version: 1, Name: "init", Checksum: "aaa"},
		{Version: 2, Name: "ledger", Checksum: "bbb"},
		{Version: 3, Name: "categories", Checksum: "ccc"},
	}
	applied := []postgres.AppliedMigration{
		{Version: 1, Name: "init", Checksum: "aaa", AppliedAt: at, AppliedBy: "migrate-cli"},
		{Version: 2, Name: "ledger", Checksum: "old", AppliedAt: at},
	}

	var out bytes.Buffer
	printStatus(&out, migrations, applied)

	assert.Equal(t,
		"  [OK]      0001_init (applied 2024-05-01 by migrate-cli)\n"+
			"  [CHANGED] 0002_ledger (applied 2024-05-01)\n"+
			"  [PENDING] 0003_categories\n",
		out.String())
}
