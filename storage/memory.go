package storage

import (
	"sync"

	"github.com/dagchain/consensus-core/era"
	"github.com/dagchain/consensus-core/hash"
	"github.com/dagchain/consensus-core/message"
)

// Memory is an in-memory BlockStorage + EraStorage, structured the way the
// teacher keeps its chain state: plain maps guarded by a single
// sync.RWMutex.
type Memory struct {
	mu sync.RWMutex

	messages        map[hash.Hash]*message.Message
	finality        map[hash.Hash]FinalityStatus
	deployToMessage map[hash.Hash]hash.Hash
	deploys         map[hash.Hash]*message.Deploy
	deployProcessed map[hash.Hash]bool

	eras       map[hash.Hash]*era.Era
	eraChildren map[hash.Hash][]hash.Hash
}

// NewMemory builds an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		messages:        make(map[hash.Hash]*message.Message),
		finality:        make(map[hash.Hash]FinalityStatus),
		deployToMessage: make(map[hash.Hash]hash.Hash),
		deploys:         make(map[hash.Hash]*message.Deploy),
		deployProcessed: make(map[hash.Hash]bool),
		eras:            make(map[hash.Hash]*era.Era),
		eraChildren:     make(map[hash.Hash][]hash.Hash),
	}
}

func (m *Memory) PutMessage(msg *message.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages[msg.Hash] = msg
	m.finality[msg.Hash] = Undecided
	for _, d := range msg.Deploys {
		m.deployToMessage[d.Hash] = msg.Hash
	}
	return nil
}

func (m *Memory) GetMessage(h hash.Hash) (*message.Message, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	msg, ok := m.messages[h]
	return msg, ok, nil
}

func (m *Memory) GetMessageByDeployHash(deployHash hash.Hash) (hash.Hash, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	h, ok := m.deployToMessage[deployHash]
	return h, ok, nil
}

func (m *Memory) SetFinality(h hash.Hash, status FinalityStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.finality[h] = status
	return nil
}

func (m *Memory) GetFinality(h hash.Hash) (FinalityStatus, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.finality[h]
	return s, ok, nil
}

func (m *Memory) PutDeploy(d *message.Deploy) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deploys[d.Hash] = d
	return nil
}

func (m *Memory) MarkDeployProcessed(deployHash hash.Hash) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deployProcessed[deployHash] = true
	return nil
}

func (m *Memory) RemoveFinalizedDeploy(deployHash hash.Hash) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.deploys, deployHash)
	delete(m.deployProcessed, deployHash)
	return nil
}

func (m *Memory) PutEra(e *era.Era) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.eras[e.KeyBlockHash] = e
	if !e.ParentKeyBlockHash.IsZero() {
		m.eraChildren[e.ParentKeyBlockHash] = append(m.eraChildren[e.ParentKeyBlockHash], e.KeyBlockHash)
	}
	return nil
}

func (m *Memory) GetEra(keyBlockHash hash.Hash) (*era.Era, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.eras[keyBlockHash]
	return e, ok, nil
}

func (m *Memory) ChildEras(keyBlockHash hash.Hash) ([]hash.Hash, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]hash.Hash, len(m.eraChildren[keyBlockHash]))
	copy(out, m.eraChildren[keyBlockHash])
	return out, nil
}
