package catalog

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tg-collector-bot/internal/adapters/memory"
	"tg-collector-bot/internal/domain"
)

func newService() (*Service, *memory.Store) {
	store := memory.NewStore()
	return NewService(store, store, store, store, store, AccessConfig{OwnerID: 1, SudoIDs: []int64{2}}, nil, zerolog.Nop()), store
}

func TestNormalizeName(t *testing.T) {
	cases := map[string]string{
		"son-goku":        "Son Goku",
		"monkey-d--luffy": "Monkey D Luffy",
		"  vegeta  ":      "Vegeta",
		"ATTACK-on-titan": "Attack On Titan",
		"":                "",
	}
	for in, want := range cases {
		if got := NormalizeName(in); got != want {
			t.Fatalf("NormalizeName(%q) = %q, ожидали %q", in, got, want)
		}
	}
	if got := ResolveAnime("3"); got != "Naruto" {
		t.Fatalf("код 3 должен означать Naruto, получили %q", got)
	}
}

func TestRoleOf(t *testing.T) {
	service, store := newService()
	ctx := context.Background()
	require.NoError(t, store.SetRole(ctx, 3, domain.RoleUploader))

	cases := map[int64]domain.Role{1: domain.RoleOwner, 2: domain.RoleSudo, 3: domain.RoleUploader, 4: domain.RoleUser}
	for id, want := range cases {
		got, err := service.RoleOf(ctx, id)
		require.NoError(t, err)
		if got != want {
			t.Fatalf("роль %d: ожидали %s, получили %s", id, want, got)
		}
	}
}

func TestUploadUpdateDelete(t *testing.T) {
	service, store := newService()
	ctx := context.Background()

	if _, err := service.Upload(ctx, domain.RoleUser, UploadRequest{MediaRef: "f", Name: "goku", RarityCode: "1"}); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("ожидали ErrForbidden, получили %v", err)
	}
	if _, err := service.Upload(ctx, domain.RoleUploader, UploadRequest{MediaRef: "f", Name: "goku", RarityCode: "9"}); !errors.Is(err, domain.ErrUnknownRarity) {
		t.Fatalf("ожидали ErrUnknownRarity, получили %v", err)
	}
	c, err := service.Upload(ctx, domain.RoleUploader, UploadRequest{MediaRef: "file-1", Name: "son-goku", Anime: "1", RarityCode: "4"})
	require.NoError(t, err)
	assert.Equal(t, "001", c.ID)
	assert.Equal(t, "Son Goku", c.Name)
	assert.Equal(t, "Dragon Ball", c.Anime)
	assert.Equal(t, domain.RaritySparking, c.Rarity)

	second, err := service.Upload(ctx, domain.RoleSudo, UploadRequest{MediaRef: "file-2", Name: "vegeta", Anime: "dragon-ball-z", RarityCode: "2"})
	require.NoError(t, err)
	assert.Equal(t, "002", second.ID)
	assert.Equal(t, "Dragon Ball Z", second.Anime)

	updated, err := service.Update(ctx, domain.RoleUploader, "001", domain.CharacterFieldRarity, "5")
	require.NoError(t, err)
	assert.Equal(t, domain.RarityLimited, updated.Rarity)
	if _, err := service.Update(ctx, domain.RoleUploader, "001", domain.CharacterField("power"), "9000"); !errors.Is(err, ErrInvalidField) {
		t.Fatalf("ожидали ErrInvalidField, получили %v", err)
	}

	_, err = store.Grant(ctx, 10, domain.Balances{}, domain.Balances{}, []domain.Character{updated, updated}, domain.SourceDrop)
	require.NoError(t, err)
	require.NoError(t, store.SetFavorite(ctx, 10, "001"))

	_, err = service.Delete(ctx, domain.RoleUploader, "001")
	require.NoError(t, err)
	owned, _ := store.ListOwned(ctx, 10)
	assert.Empty(t, owned)
	profile, _ := store.GetProfile(ctx, 10)
	assert.Empty(t, profile.FavoriteCharacterID)
	if _, err := store.GetCharacter(ctx, "001"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("удалённый персонаж не должен находиться, получили %v", err)
	}
}

func TestResetRequiresOwner(t *testing.T) {
	service, _ := newService()
	if err := service.ResetGameState(context.Background(), domain.RoleSudo); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("ожидали ErrForbidden, получили %v", err)
	}
	if err := service.ResetGameState(context.Background(), domain.RoleOwner); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
}

func TestRedeemFirstWins(t *testing.T) {
	service, store := newService()
	ctx := context.Background()
	require.NoError(t, store.CreateCharacter(ctx, domain.Character{ID: "077", Name: "Cell", Rarity: domain.RarityUltimate}))

	if _, err := service.GenerateCode(ctx, domain.RoleUploader, 3, "6"); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("ожидали ErrForbidden, получили %v", err)
	}
	code, err := service.GenerateCode(ctx, domain.RoleSudo, 2, "6")
	require.NoError(t, err)
	assert.Regexp(t, regexp.MustCompile(`^[A-Z0-9]{10}$`), code.Code)

	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := service.Redeem(ctx, domain.Profile{UserID: int64(100 + i)}, code.Code)
			if err == nil {
				mu.Lock()
				winners++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, domain.ErrCodeUsed)
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 1, winners)
}

func TestAddRole(t *testing.T) {
	service, _ := newService()
	ctx := context.Background()
	if _, err := service.AddRole(ctx, domain.RoleSudo, 5, "uploader"); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("ожидали ErrForbidden, получили %v", err)
	}
	if _, err := service.AddRole(ctx, domain.RoleOwner, 5, "king"); !errors.Is(err, ErrInvalidRole) {
		t.Fatalf("ожидали ErrInvalidRole, получили %v", err)
	}
	role, err := service.AddRole(ctx, domain.RoleOwner, 5, "Uploader")
	require.NoError(t, err)
	assert.Equal(t, domain.RoleUploader, role)
	got, _ := service.RoleOf(ctx, 5)
	assert.Equal(t, domain.RoleUploader, got)
}
