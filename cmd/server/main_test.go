package main

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vedran77/pulsechat/internal/config"
	"github.com/vedran77/pulsechat/internal/logger"
)

func TestSeedDirectory(t *testing.T) {
	ctx := context.Background()
	users := []config.SeedUser{
		{ID: uuid.New(), DisplayName: "ana"},
		{ID: uuid.New(), DisplayName: "ben"},
		{ID: uuid.New(), DisplayName: "cleo"},
	}

	dir := seedDirectory(users)

	for _, u := range users {
		p, err := dir.ResolveProfile(ctx, u.ID)
		require.NoError(t, err)
		require.NotNil(t, p)
		assert.Equal(t, u.DisplayName, p.DisplayName)
	}
	for i := range users {
		for j := range users {
			if i == j {
				continue
			}
			ok, err := dir.IsFriend(ctx, users[i].ID, users[j].ID)
			require.NoError(t, err)
			assert.True(t, ok, "%s and %s", users[i].DisplayName, users[j].DisplayName)
		}
	}

	p, err := dir.ResolveProfile(ctx, uuid.New())
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestOpenMemoryRepositoriesSeeded(t *testing.T) {
	ctx := context.Background()
	ana := uuid.New()
	cfg := &config.Config{
		StoreDriver: config.StoreDriverMemory,
		SeedUsers:   []config.SeedUser{{ID: ana, DisplayName: "ana"}},
	}

	repos, err := openRepositories(ctx, cfg, logger.Discard())
	require.NoError(t, err)
	defer repos.close()

	p, err := repos.dir.ResolveProfile(ctx, ana)
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, "ana", p.DisplayName)
}

func TestOpenRepositoriesUnknownDriver(t *testing.T) {
	_, err := openRepositories(context.Background(), &config.Config{StoreDriver: "sqlite"}, logger.Discard())
	assert.ErrorContains(t, err, "sqlite")
}
