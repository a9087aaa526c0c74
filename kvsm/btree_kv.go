package kvsm

import (
	"bytes"
	"sync"

	"github.com/google/btree"
)

const btreeDegree = 32

type keyValue struct {
	key   []byte
	value []byte
}

func (kv keyValue) Less(than btree.Item) bool {
	return bytes.Compare(kv.key, than.(keyValue).key) < 0
}

// BTreeKV is an in-memory key-value state machine over a btree index.
// Apply executes encoded commands in log order; Query serves a key
// lookup. Both return the affected value, which the Raft node hands
// back to the requesting client.
type BTreeKV struct {
	mu   sync.RWMutex
	tree *btree.BTree
}

// NewBTreeKV creates an empty in-memory key-value state machine.
func NewBTreeKV() *BTreeKV {
	return &BTreeKV{tree: btree.New(btreeDegree)}
}

// Apply executes one committed command. Malformed commands return nil;
// the log position is consumed either way, identically on every node.
func (kv *BTreeKV) Apply(command []byte) []byte {
	cmd, err := DecodeCommand(command)
	if err != nil {
		return nil
	}

	kv.mu.Lock()
	defer kv.mu.Unlock()

	switch cmd.Kind {
	case CommandPut:
		kv.tree.ReplaceOrInsert(keyValue{key: append([]byte{}, cmd.Key...), value: append([]byte{}, cmd.Value...)})
		return cmd.Value

	case CommandDelete:
		if prev := kv.tree.Delete(keyValue{key: cmd.Key}); prev != nil {
			return prev.(keyValue).value
		}
	}
	return nil
}

// Query returns the value stored under the query key, or nil.
func (kv *BTreeKV) Query(query []byte) []byte {
	kv.mu.RLock()
	defer kv.mu.RUnlock()

	if item := kv.tree.Get(keyValue{key: query}); item != nil {
		return item.(keyValue).value
	}
	return nil
}

// Len returns the number of stored keys.
func (kv *BTreeKV) Len() int {
	kv.mu.RLock()
	defer kv.mu.RUnlock()

	return kv.tree.Len()
}
