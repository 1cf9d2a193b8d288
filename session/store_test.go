package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type storeFactory struct {
	name string
	open func(t *testing.T) Store
}

func storeFactories() []storeFactory {
	return []storeFactory{
		{
			name: "memory",
			open: func(t *testing.T) Store { return NewMemoryStore() },
		},
		{
			name: "file",
			open: func(t *testing.T) Store {
				return NewFileStore(filepath.Join(t.TempDir(), "session.json"), "default", nil)
			},
		},
		{
			name: "redis",
			open: func(t *testing.T) Store {
				mr := miniredis.RunT(t)
				client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
				t.Cleanup(func() { _ = client.Close() })
				return NewRedisStore(client, "", "default", nil)
			},
		},
		{
			name: "sqlite",
			open: func(t *testing.T) Store {
				s, err := OpenSQLiteStore(filepath.Join(t.TempDir(), "session.db"), "default", nil)
				require.NoError(t, err)
				t.Cleanup(func() { _ = s.Close() })
				return s
			},
		},
	}
}

func TestStore_Contract(t *testing.T) {
	for _, f := range storeFactories() {
		t.Run(f.name, func(t *testing.T) {
			t.Run("empty store has no credential", func(t *testing.T) {
				s := f.open(t)
				cred, ok := s.Get()
				assert.False(t, ok)
				assert.True(t, cred.IsZero())
			})

			t.Run("save then get", func(t *testing.T) {
				s := f.open(t)
				require.NoError(t, SaveCredential(s, Credential{AccessToken: "A1", RefreshToken: "R1"}))

				cred, ok := s.Get()
				require.True(t, ok)
				assert.Equal(t, Credential{AccessToken: "A1", RefreshToken: "R1"}, cred)
			})

			t.Run("set access keeps refresh", func(t *testing.T) {
				s := f.open(t)
				require.NoError(t, SaveCredential(s, Credential{AccessToken: "A1", RefreshToken: "R1"}))
				require.NoError(t, s.SetAccess("A2"))

				cred, _ := s.Get()
				assert.Equal(t, Credential{AccessToken: "A2", RefreshToken: "R1"}, cred)
			})

			t.Run("set refresh keeps access", func(t *testing.T) {
				s := f.open(t)
				require.NoError(t, SaveCredential(s, Credential{AccessToken: "A1", RefreshToken: "R1"}))
				require.NoError(t, s.SetRefresh("R2"))

				cred, _ := s.Get()
				assert.Equal(t, Credential{AccessToken: "A1", RefreshToken: "R2"}, cred)
			})

			t.Run("clear removes both and is idempotent", func(t *testing.T) {
				s := f.open(t)
				require.NoError(t, s.Clear(), "clearing an empty store")

				require.NoError(t, SaveCredential(s, Credential{AccessToken: "A1", RefreshToken: "R1"}))
				require.NoError(t, s.Clear())
				require.NoError(t, s.Clear())

				cred, ok := s.Get()
				assert.False(t, ok)
				assert.True(t, cred.IsZero())
			})

			t.Run("login without refresh token drops the old one", func(t *testing.T) {
				s := f.open(t)
				require.NoError(t, SaveCredential(s, Credential{AccessToken: "A1", RefreshToken: "R1"}))
				require.NoError(t, SaveCredential(s, Credential{AccessToken: "B1"}))

				cred, ok := s.Get()
				require.True(t, ok)
				assert.Equal(t, Credential{AccessToken: "B1"}, cred)
			})
		})
	}
}

func TestFileStore_ProfilesShareFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	work := NewFileStore(path, "work", nil)
	home := NewFileStore(path, "home", nil)

	require.NoError(t, SaveCredential(work, Credential{AccessToken: "W1", RefreshToken: "WR"}))
	require.NoError(t, SaveCredential(home, Credential{AccessToken: "H1", RefreshToken: "HR"}))
	require.NoError(t, work.Clear())

	_, ok := work.Get()
	assert.False(t, ok)

	cred, ok := home.Get()
	require.True(t, ok)
	assert.Equal(t, "H1", cred.AccessToken)
}

func TestFileStore_FileModeAndLayout(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	s := NewFileStore(path, "default", nil)
	require.NoError(t, SaveCredential(s, Credential{AccessToken: "A1", RefreshToken: "R1"}))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
	assert.NoFileExists(t, path+".tmp")
	assert.NoFileExists(t, path+".lock")

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var doc map[string]map[string]map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	entry := doc["sessions"]["default"]
	assert.Equal(t, "A1", entry[KeyAccessToken])
	assert.Equal(t, "R1", entry[KeyRefreshToken])
	assert.NotEmpty(t, entry["updated_at"])
}

func TestFileStore_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	s := NewFileStore(path, "default", nil)
	_, ok := s.Get()
	assert.False(t, ok, "an unreadable file reads as logged out")

	require.NoError(t, SaveCredential(s, Credential{AccessToken: "A1", RefreshToken: "R1"}))
	cred, ok := s.Get()
	require.True(t, ok)
	assert.Equal(t, "A1", cred.AccessToken)
}

func TestFileStore_ClearMissingFileCreatesNothing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	require.NoError(t, NewFileStore(path, "default", nil).Clear())
	assert.NoFileExists(t, path)
}

func TestFileStore_ConcurrentProfiles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")

	const profiles = 6
	var wg sync.WaitGroup
	wg.Add(profiles)
	for i := 0; i < profiles; i++ {
		go func(i int) {
			defer wg.Done()
			s := NewFileStore(path, fmt.Sprintf("p%d", i), nil)
			assert.NoError(t, SaveCredential(s, Credential{
				AccessToken:  fmt.Sprintf("A%d", i),
				RefreshToken: fmt.Sprintf("R%d", i),
			}))
		}(i)
	}
	wg.Wait()

	for i := 0; i < profiles; i++ {
		cred, ok := NewFileStore(path, fmt.Sprintf("p%d", i), nil).Get()
		require.True(t, ok, "profile p%d lost", i)
		assert.Equal(t, fmt.Sprintf("A%d", i), cred.AccessToken)
	}
}

func TestRedisStore_KeyLayout(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	s := NewRedisStore(client, "st", "work", nil)
	require.NoError(t, SaveCredential(s, Credential{AccessToken: "A1", RefreshToken: "R1"}))

	got, err := mr.Get("st:work:access_token")
	require.NoError(t, err)
	assert.Equal(t, "A1", got)
	got, err = mr.Get("st:work:refresh_token")
	require.NoError(t, err)
	assert.Equal(t, "R1", got)
	assert.Zero(t, mr.TTL("st:work:access_token"))
}

func TestRedisStore_UnreachableReadsAsLoggedOut(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer client.Close()

	s := NewRedisStore(client, "", "default", nil)
	require.NoError(t, SaveCredential(s, Credential{AccessToken: "A1", RefreshToken: "R1"}))
	mr.Close()

	_, ok := s.Get()
	assert.False(t, ok)
	assert.Error(t, s.SetAccess("A2"))
}

func TestSQLiteStore_ProfilesIsolated(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "session.db")

	work, err := OpenSQLiteStore(dsn, "work", nil)
	require.NoError(t, err)
	defer work.Close()
	home, err := OpenSQLiteStore(dsn, "home", nil)
	require.NoError(t, err)
	defer home.Close()

	require.NoError(t, SaveCredential(work, Credential{AccessToken: "W1", RefreshToken: "WR"}))
	require.NoError(t, SaveCredential(home, Credential{AccessToken: "H1", RefreshToken: "HR"}))
	require.NoError(t, home.Clear())

	cred, ok := work.Get()
	require.True(t, ok)
	assert.Equal(t, "W1", cred.AccessToken)
	_, ok = home.Get()
	assert.False(t, ok)
}
