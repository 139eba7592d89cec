package client_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"

	"github.com/jrsteele09/go-session-auth/client"
)

func TestKeyringPersister(t *testing.T) {
	keyring.MockInit()

	_, err := client.NewKeyringPersister("", "ann")
	require.Error(t, err)

	p, err := client.NewKeyringPersister(client.DefaultKeyringService, "ann")
	require.NoError(t, err)

	stored, err := p.Load()
	require.NoError(t, err)
	require.Nil(t, stored)
	require.NoError(t, p.Clear())

	require.NoError(t, p.Save(&client.PersistedSession{RefreshToken: "refresh-0", User: ann.Clone()}))
	stored, err = p.Load()
	require.NoError(t, err)
	require.Equal(t, "refresh-0", stored.RefreshToken)
	require.Equal(t, ann.Email, stored.User.Email)

	require.NoError(t, p.Clear())
	stored, err = p.Load()
	require.NoError(t, err)
	require.Nil(t, stored)
}

func TestKeyringPersister_DrivesController(t *testing.T) {
	keyring.MockInit()
	p, err := client.NewKeyringPersister(client.DefaultKeyringService, "ann")
	require.NoError(t, err)

	c := newController(t, &fakeAPI{}, p)
	_, err = c.Login(t.Context(), ann.Email, "pw123456")
	require.NoError(t, err)

	stored, err := p.Load()
	require.NoError(t, err)
	require.Equal(t, "refresh-0", stored.RefreshToken)
}

func TestMemoryPersister_ReturnsCopies(t *testing.T) {
	p := client.NewMemoryPersister()
	session := &client.PersistedSession{RefreshToken: "refresh-0", User: ann.Clone()}
	require.NoError(t, p.Save(session))
	session.User.Name = "changed"

	stored, err := p.Load()
	require.NoError(t, err)
	require.Equal(t, "Ann", stored.User.Name)
}
