package gap

import (
	"testing"

	"github.com/muxable/bredr/pkg/hci"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type storedBond struct {
	id   PeerID
	addr hci.BDAddr
	bond BrEdrBond
}

type fakeBondStore struct {
	bonds []storedBond
	err   error
}

func (s *fakeBondStore) StoreBrEdrBond(id PeerID, addr hci.BDAddr, bond BrEdrBond) error {
	s.bonds = append(s.bonds, storedBond{id: id, addr: addr, bond: bond})
	return s.err
}

func TestPeerCacheEvictsTemporaryPeers(t *testing.T) {
	c, err := NewPeerCache(2, nil)
	require.NoError(t, err)

	a := c.FindOrCreate(hci.BDAddr{1})
	assert.Same(t, a, c.FindOrCreate(hci.BDAddr{1}))
	b := c.FindOrCreate(hci.BDAddr{2})
	c.FindOrCreate(hci.BDAddr{3})

	assert.Nil(t, c.FindByID(a.ID))
	assert.Nil(t, c.FindByAddress(a.Address))
	assert.Same(t, b, c.FindByAddress(b.Address))
	assert.Equal(t, 2, c.Len())
}

func TestPeerCacheRetainsConnectedPeers(t *testing.T) {
	c, err := NewPeerCache(1, nil)
	require.NoError(t, err)

	a := c.FindOrCreate(hci.BDAddr{1})
	c.SetConnected(a.ID, true)
	assert.True(t, a.Connected)
	c.FindOrCreate(hci.BDAddr{2})
	c.FindOrCreate(hci.BDAddr{3})
	assert.Same(t, a, c.FindByAddress(hci.BDAddr{1}))

	c.SetConnected(a.ID, false)
	assert.False(t, a.Connected)
	c.FindOrCreate(hci.BDAddr{4})
	assert.Nil(t, c.FindByID(a.ID))
}

func TestPeerCacheBonds(t *testing.T) {
	store := &fakeBondStore{}
	c, err := NewPeerCache(1, store)
	require.NoError(t, err)

	a := c.FindOrCreate(hci.BDAddr{1})
	bond := BrEdrBond{Key: linkKey(5), Type: hci.LinkKeyTypeAuthenticatedCombinationP256}
	require.NoError(t, c.StoreBrEdrBond(a.ID, bond))
	assert.True(t, a.Bonded())
	require.Len(t, store.bonds, 1)
	assert.Equal(t, storedBond{id: a.ID, addr: a.Address, bond: bond}, store.bonds[0])

	// Bonded peers survive disconnection and eviction pressure.
	c.SetConnected(a.ID, true)
	c.SetConnected(a.ID, false)
	c.FindOrCreate(hci.BDAddr{2})
	c.FindOrCreate(hci.BDAddr{3})
	assert.Same(t, a, c.FindByID(a.ID))

	store.err = errors.New("disk full")
	assert.Error(t, c.StoreBrEdrBond(a.ID, bond))
	assert.True(t, errors.Is(c.StoreBrEdrBond(NewPeerID(), bond), ErrNotFound))
}

func TestPeerCacheAddBondedPeer(t *testing.T) {
	c, err := NewPeerCache(DefaultPeerCacheSize, nil)
	require.NoError(t, err)

	id := NewPeerID()
	bond := BrEdrBond{Key: linkKey(1), Type: hci.LinkKeyTypeUnauthenticatedCombinationP192}
	p, err := c.AddBondedPeer(id, hci.BDAddr{9}, bond)
	require.NoError(t, err)
	assert.Equal(t, id, p.ID)
	assert.Same(t, p, c.FindOrCreate(hci.BDAddr{9}))

	_, err = c.AddBondedPeer(NewPeerID(), hci.BDAddr{9}, bond)
	assert.Error(t, err)
}
