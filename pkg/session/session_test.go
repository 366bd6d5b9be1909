package session

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"
)

func testSession() *Session {
	return &Session{
		Username:  "testuser",
		SessionID: "12345678%3Aabcdefgh%3A12",
		CSRFToken: "YTQHujAgMhyveLvvuwCfw9CPI8ROAHoy",
	}
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(t.TempDir(), StaticPassphrase("test-passphrase"))
	require.NoError(t, err)
	return store
}

func TestSessionValidate(t *testing.T) {
	assert.NoError(t, testSession().Validate())

	err := (&Session{Username: "x"}).Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidSession))
	assert.Contains(t, err.Error(), "sessionid")
	assert.Contains(t, err.Error(), "csrftoken")

	var nilSession *Session
	assert.ErrorIs(t, nilSession.Validate(), ErrInvalidSession)
}

func TestDeriveUserID(t *testing.T) {
	s := testSession()
	s.DeriveUserID()
	assert.Equal(t, "12345678", s.DSUserID)

	s = &Session{SessionID: "nodelimiter", DSUserID: ""}
	s.DeriveUserID()
	assert.Empty(t, s.DSUserID)
}

func TestCookieJar(t *testing.T) {
	s := testSession()
	s.DSUserID = "12345678"
	now := time.Unix(1700000000, 0)

	jar := string(s.CookieJar(now))
	lines := strings.Split(strings.TrimSpace(jar), "\n")

	require.Len(t, lines, 4)
	assert.Equal(t, "# Netscape HTTP Cookie File", lines[0])
	fields := strings.Split(lines[1], "\t")
	require.Len(t, fields, 7)
	assert.Equal(t, CookieDomain, fields[0])
	assert.Equal(t, "sessionid", fields[5])
	assert.Equal(t, s.SessionID, fields[6])
	assert.Contains(t, jar, "csrftoken\t"+s.CSRFToken)
	assert.Contains(t, jar, "ds_user_id\t12345678")
}

func TestMasked(t *testing.T) {
	m := testSession().Masked()
	assert.Equal(t, "1234...3A12", m.SessionID)
	assert.NotContains(t, m.CSRFToken, "MhyveLvvu")
	assert.Equal(t, "********", maskString("short"))
}

func TestStoreRoundTrip(t *testing.T) {
	store := newTestStore(t)
	assert.False(t, store.Exists())

	require.NoError(t, store.Save(testSession()))
	assert.True(t, store.Exists())

	raw, err := os.ReadFile(store.Path())
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "YTQHujAgMhyveLvvuwCfw9CPI8ROAHoy", "artifact must be encrypted")

	loaded, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, "testuser", loaded.Username)
	assert.Equal(t, testSession().SessionID, loaded.SessionID)
	assert.False(t, loaded.SavedAt.IsZero())

	require.NoError(t, store.Delete())
	assert.False(t, store.Exists())
	assert.ErrorIs(t, store.Delete(), ErrNotFound)
}

func TestStoreRejectsInvalidSession(t *testing.T) {
	store := newTestStore(t)
	assert.ErrorIs(t, store.Save(&Session{Username: "x"}), ErrInvalidSession)
	assert.False(t, store.Exists())
}

func TestStoreLoadMissing(t *testing.T) {
	_, err := newTestStore(t).Load()
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStoreWrongPassphrase(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir, StaticPassphrase("right"))
	require.NoError(t, err)
	require.NoError(t, store.Save(testSession()))

	other, err := NewStore(dir, StaticPassphrase("wrong"))
	require.NoError(t, err)
	_, err = other.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decrypt")
}

func TestMaterialize(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.Save(testSession()))

	tmp := t.TempDir()
	path, cleanup, err := store.Materialize(tmp)
	require.NoError(t, err)
	assert.Equal(t, tmp, filepath.Dir(path))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(content), "sessionid\t"+testSession().SessionID)

	cleanup()
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
	cleanup()
}

func TestMaterializeWithoutSession(t *testing.T) {
	store := newTestStore(t)
	path, cleanup, err := store.Materialize(t.TempDir())
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Empty(t, path)
	cleanup()
}

func TestKeyringPassphrase(t *testing.T) {
	keyring.MockInit()
	t.Setenv(EnvPassphrase, "")

	src := NewKeyringPassphrase(t.TempDir())
	first, err := src.Passphrase()
	require.NoError(t, err)
	assert.NotEmpty(t, first)

	second, err := src.Passphrase()
	require.NoError(t, err)
	assert.Equal(t, first, second, "passphrase must be stable across calls")

	require.NoError(t, src.Forget())
	require.NoError(t, src.Forget())
}

func TestKeyringPassphraseEnvOverride(t *testing.T) {
	keyring.MockInit()
	t.Setenv(EnvPassphrase, "from-env")

	pass, err := NewKeyringPassphrase(t.TempDir()).Passphrase()
	require.NoError(t, err)
	assert.Equal(t, "from-env", pass)
}

func TestKeyringPassphraseFileFallback(t *testing.T) {
	keyring.MockInitWithError(errors.New("no keychain"))
	t.Cleanup(keyring.MockInit)
	t.Setenv(EnvPassphrase, "")

	dir := t.TempDir()
	src := NewKeyringPassphrase(dir)
	first, err := src.Passphrase()
	require.NoError(t, err)

	info, err := os.Stat(filepath.Join(dir, passphraseFile))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	second, err := src.Passphrase()
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestStaticPassphraseEmpty(t *testing.T) {
	_, err := StaticPassphrase("").Passphrase()
	assert.Error(t, err)
}
