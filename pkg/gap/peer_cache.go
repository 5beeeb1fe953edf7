package gap

import (
	lru "github.com/hashicorp/golang-lru"
	"github.com/muxable/bredr/pkg/hci"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// DefaultPeerCacheSize bounds the number of temporary peers remembered.
const DefaultPeerCacheSize = 128

// BondStore persists bonding data outside the process.
type BondStore interface {
	StoreBrEdrBond(id PeerID, addr hci.BDAddr, bond BrEdrBond) error
}

// PeerCache tracks known peers. Peers that are bonded or connected are
// retained; other peers are evicted least recently used first.
type PeerCache struct {
	temporary *lru.Cache
	retained  map[PeerID]*Peer
	byAddr    map[hci.BDAddr]PeerID
	store     BondStore
	log       *zap.Logger
}

// NewPeerCache creates a cache holding up to size temporary peers. store may
// be nil, in which case bonds only live as long as the cache.
func NewPeerCache(size int, store BondStore) (*PeerCache, error) {
	c := &PeerCache{
		retained: make(map[PeerID]*Peer),
		byAddr:   make(map[hci.BDAddr]PeerID),
		store:    store,
		log:      zap.L().Named("peers"),
	}
	temporary, err := lru.NewWithEvict(size, c.onEvict)
	if err != nil {
		return nil, errors.Wrap(err, "peer cache")
	}
	c.temporary = temporary
	return c, nil
}

func (c *PeerCache) onEvict(key, value interface{}) {
	id := key.(PeerID)
	if _, ok := c.retained[id]; ok {
		// Moved, not evicted.
		return
	}
	p := value.(*Peer)
	if c.byAddr[p.Address] == id {
		delete(c.byAddr, p.Address)
	}
	c.log.Debug("evicted peer", zap.Stringer("peer", id), zap.Stringer("addr", p.Address))
}

// FindByID returns nil if the peer is unknown.
func (c *PeerCache) FindByID(id PeerID) *Peer {
	if p, ok := c.retained[id]; ok {
		return p
	}
	if v, ok := c.temporary.Get(id); ok {
		return v.(*Peer)
	}
	return nil
}

func (c *PeerCache) FindByAddress(addr hci.BDAddr) *Peer {
	id, ok := c.byAddr[addr]
	if !ok {
		return nil
	}
	return c.FindByID(id)
}

// FindOrCreate returns the peer with addr, creating a temporary one if needed.
func (c *PeerCache) FindOrCreate(addr hci.BDAddr) *Peer {
	if p := c.FindByAddress(addr); p != nil {
		return p
	}
	p := &Peer{ID: NewPeerID(), Address: addr}
	c.byAddr[addr] = p.ID
	c.temporary.Add(p.ID, p)
	c.log.Debug("new peer", zap.Stringer("peer", p.ID), zap.Stringer("addr", addr))
	return p
}

// AddBondedPeer restores a peer whose bond was persisted earlier.
func (c *PeerCache) AddBondedPeer(id PeerID, addr hci.BDAddr, bond BrEdrBond) (*Peer, error) {
	if existing, ok := c.byAddr[addr]; ok && existing != id {
		return nil, errors.Errorf("address %v already belongs to peer %v", addr, existing)
	}
	p := c.FindByID(id)
	if p == nil {
		p = &Peer{ID: id, Address: addr}
	}
	p.Bond = &bond
	c.retain(p)
	return p, nil
}

func (c *PeerCache) retain(p *Peer) {
	c.retained[p.ID] = p
	c.byAddr[p.Address] = p.ID
	c.temporary.Remove(p.ID)
}

// SetConnected pins connected peers so that they cannot be evicted.
func (c *PeerCache) SetConnected(id PeerID, connected bool) {
	p := c.FindByID(id)
	if p == nil {
		return
	}
	p.Connected = connected
	if connected {
		c.retain(p)
		return
	}
	if !p.Bonded() {
		delete(c.retained, id)
		c.temporary.Add(id, p)
	}
}

// StoreBrEdrBond records a new link key for the peer and persists it.
func (c *PeerCache) StoreBrEdrBond(id PeerID, bond BrEdrBond) error {
	p := c.FindByID(id)
	if p == nil {
		return errors.Wrapf(ErrNotFound, "peer %v", id)
	}
	p.Bond = &bond
	c.retain(p)
	c.log.Info("bonded", zap.Stringer("peer", id), zap.Uint8("key_type", uint8(bond.Type)))
	if c.store == nil {
		return nil
	}
	return errors.Wrap(c.store.StoreBrEdrBond(id, p.Address, bond), "store bond")
}

// Len returns the number of known peers.
func (c *PeerCache) Len() int {
	return len(c.retained) + c.temporary.Len()
}
