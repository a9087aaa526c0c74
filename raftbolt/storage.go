// Package raftbolt implements the Raft stable-storage contract on top of
// a bolt database. Term, vote, and log entries live in two buckets; every
// mutating call commits its own write transaction, so durability holds on
// return, as the Raft core requires.
package raftbolt

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/boltdb/bolt"

	"github.com/CrystalAnalyst/toydb/raft"
	"github.com/CrystalAnalyst/toydb/raft/raftpb"
)

var (
	bucketState   = []byte("state")
	bucketEntries = []byte("entries")

	keyHardState = []byte("hard-state")
)

var boltOpenOptions = &bolt.Options{
	Timeout: time.Second,
}

// Storage is a bolt-backed raft.StorageStable.
type Storage struct {
	db *bolt.DB
}

// Open opens (creating if needed) the database at path and seeds the
// genesis entry on first use.
func Open(path string) (*Storage, error) {
	db, err := bolt.Open(path, 0600, boltOpenOptions)
	if err != nil {
		return nil, fmt.Errorf("raftbolt: open %s: %w", path, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketState); err != nil {
			return err
		}
		eb, err := tx.CreateBucketIfNotExists(bucketEntries)
		if err != nil {
			return err
		}

		if eb.Stats().KeyN == 0 {
			genesis := raft.GenesisEntry()
			return eb.Put(entryKey(genesis.Index), encodeEntry(genesis))
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("raftbolt: initialize %s: %w", path, err)
	}

	return &Storage{db: db}, nil
}

// Close releases the database.
func (s *Storage) Close() error {
	return s.db.Close()
}

// GetState returns the saved HardState.
func (s *Storage) GetState() (raftpb.HardState, error) {
	var st raftpb.HardState
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketState).Get(keyHardState)
		if v == nil {
			return nil
		}
		if len(v) != 16 {
			return fmt.Errorf("raftbolt: malformed hard state (%d bytes)", len(v))
		}
		st.Term = binary.BigEndian.Uint64(v[:8])
		st.VotedFor = binary.BigEndian.Uint64(v[8:])
		return nil
	})
	return st, err
}

// SetState persists the HardState.
func (s *Storage) SetState(st raftpb.HardState) error {
	v := make([]byte, 16)
	binary.BigEndian.PutUint64(v[:8], st.Term)
	binary.BigEndian.PutUint64(v[8:], st.VotedFor)

	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketState).Put(keyHardState, v)
	})
}

// FirstIndex returns the index of the first entry, which is always the
// genesis index since the log is never compacted.
func (s *Storage) FirstIndex() (uint64, error) {
	return raft.GenesisIndex, nil
}

// LastIndex returns the index of the last entry in storage.
func (s *Storage) LastIndex() (uint64, error) {
	var last uint64
	err := s.db.View(func(tx *bolt.Tx) error {
		k, _ := tx.Bucket(bucketEntries).Cursor().Last()
		if k == nil {
			return fmt.Errorf("raftbolt: no entries (missing genesis)")
		}
		last = binary.BigEndian.Uint64(k)
		return nil
	})
	return last, err
}

// Term returns the term of the entry at index.
func (s *Storage) Term(index uint64) (uint64, error) {
	if index < raft.GenesisIndex {
		return 0, raft.ErrCompacted
	}

	var term uint64
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketEntries).Get(entryKey(index))
		if v == nil {
			return raft.ErrUnavailable
		}
		ent, err := decodeEntry(v)
		if err != nil {
			return err
		}
		term = ent.Term
		return nil
	})
	return term, err
}

// Entries returns the entries in [startIndex, endIndex), limited to
// limitSize total encoded bytes but always at least one entry.
func (s *Storage) Entries(startIndex, endIndex, limitSize uint64) ([]raftpb.Entry, error) {
	if startIndex < raft.GenesisIndex {
		return nil, raft.ErrCompacted
	}
	if startIndex >= endIndex {
		return nil, nil
	}

	var entries []raftpb.Entry
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketEntries).Cursor()

		total := 0
		for k, v := c.Seek(entryKey(startIndex)); k != nil; k, v = c.Next() {
			index := binary.BigEndian.Uint64(k)
			if index >= endIndex {
				break
			}

			ent, err := decodeEntry(v)
			if err != nil {
				return err
			}

			total += ent.Size()
			// always return at least one entry
			if len(entries) > 0 && uint64(total) > limitSize {
				break
			}
			entries = append(entries, ent)
		}

		if len(entries) == 0 {
			return raft.ErrUnavailable
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// Append writes entries, deleting any existing suffix at or above
// entries[0].Index first.
func (s *Storage) Append(entries ...raftpb.Entry) error {
	if len(entries) == 0 {
		return nil
	}

	first := entries[0].Index
	if first <= raft.GenesisIndex {
		return fmt.Errorf("raftbolt: cannot truncate genesis entry (append at index %d)", first)
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		eb := tx.Bucket(bucketEntries)

		c := eb.Cursor()
		for k, _ := c.Seek(entryKey(first)); k != nil; k, _ = c.Next() {
			if err := c.Delete(); err != nil {
				return err
			}
		}

		for _, ent := range entries {
			if err := eb.Put(entryKey(ent.Index), encodeEntry(ent)); err != nil {
				return err
			}
		}
		return nil
	})
}

func entryKey(index uint64) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, index)
	return k
}

func encodeEntry(ent raftpb.Entry) []byte {
	// reuse the message codec so on-disk and on-wire entry formats agree
	msg := raftpb.Message{Entries: []raftpb.Entry{ent}}
	bts, err := msg.Marshal()
	if err != nil {
		panic(err)
	}
	return bts
}

func decodeEntry(v []byte) (raftpb.Entry, error) {
	var msg raftpb.Message
	if err := msg.Unmarshal(v); err != nil {
		return raftpb.Entry{}, err
	}
	if len(msg.Entries) != 1 {
		return raftpb.Entry{}, fmt.Errorf("raftbolt: malformed entry record (%d entries)", len(msg.Entries))
	}
	return msg.Entries[0], nil
}
