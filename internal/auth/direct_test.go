package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/davidschubert/nuxt-appwrite-server-claudeai/internal/appwrite"
	"github.com/davidschubert/nuxt-appwrite-server-claudeai/internal/appwrite/appwritetest"
	"github.com/davidschubert/nuxt-appwrite-server-claudeai/internal/auth/entity"
	"github.com/davidschubert/nuxt-appwrite-server-claudeai/internal/store"
)

func TestDirectAPI_Lifecycle(t *testing.T) {
	fake := appwritetest.New(t)
	fake.AddUser("a@b.com", "secret", "Ann")
	api := NewDirectAPI(NewService(fake.Config(), nil), "")

	res, err := api.CurrentUser(t.Context())
	require.NoError(t, err, "no cookie is an anonymous answer")
	assert.Nil(t, res.User)
	assert.Equal(t, msgNoSession, res.Error)

	sess, err := api.Login(t.Context(), entity.Credentials{Email: "a@b.com", Password: "secret"})
	require.NoError(t, err)
	token, expire := api.Session()
	assert.Equal(t, sess.Secret, token)
	assert.False(t, expire.IsZero())

	res, err = api.CurrentUser(t.Context())
	require.NoError(t, err)
	require.NotNil(t, res.User)
	assert.Equal(t, "Ann", res.User.Name)

	require.NoError(t, api.Logout(t.Context()))
	assert.Empty(t, api.Token())
	assert.False(t, fake.SessionActive(sess.Secret))
}

func TestDirectAPI_SoftUserFailure(t *testing.T) {
	fake := appwritetest.New(t)
	api := NewDirectAPI(NewService(fake.Config(), nil), "expired")

	res, err := api.CurrentUser(t.Context())
	require.NoError(t, err)
	assert.Nil(t, res.User)
	assert.Contains(t, res.Error, "An unexpected error occurred: ")
}

func TestDirectAPI_FailedLoginKeepsToken(t *testing.T) {
	fake := appwritetest.New(t)
	api := NewDirectAPI(NewService(fake.Config(), nil), "old")

	_, err := api.Login(t.Context(), entity.Credentials{Email: "nobody@b.com", Password: "x"})
	require.Error(t, err)
	assert.Equal(t, "old", api.Token())
}

func TestDirectAPI_AnonymousStoreRefreshIsNotAnError(t *testing.T) {
	fake := appwritetest.New(t)
	var observed []string
	st := store.New(NewDirectAPI(NewService(fake.Config(), nil), ""),
		store.WithRefreshObserver(func(r string) { observed = append(observed, r) }))

	ok, err := st.Refresh(t.Context())
	assert.False(t, ok)
	assert.NoError(t, err)
	assert.Equal(t, []string{store.RefreshAnonymous}, observed)
}

func TestDirectAPI_ProviderOutageIsAnError(t *testing.T) {
	fake := appwritetest.New(t)
	cfg := fake.Config()
	fake.Close()
	api := NewDirectAPI(NewService(cfg, nil), "tok")

	res, err := api.CurrentUser(t.Context())
	assert.Nil(t, res)
	var te *appwrite.TransportError
	assert.ErrorAs(t, err, &te)
}
