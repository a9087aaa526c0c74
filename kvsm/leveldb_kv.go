package kvsm

import (
	"github.com/syndtr/goleveldb/leveldb"
)

// LevelDBKV is a leveldb-backed key-value state machine, for nodes whose
// application state should survive restarts. Restart still replays the
// committed log unless the caller tracks the applied index itself.
type LevelDBKV struct {
	db *leveldb.DB
}

// OpenLevelDBKV opens (creating if needed) a leveldb store at path.
func OpenLevelDBKV(path string) (*LevelDBKV, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, err
	}
	return &LevelDBKV{db: db}, nil
}

// Close releases the database.
func (kv *LevelDBKV) Close() error {
	return kv.db.Close()
}

// Apply executes one committed command. Malformed commands return nil;
// the log position is consumed either way, identically on every node.
func (kv *LevelDBKV) Apply(command []byte) []byte {
	cmd, err := DecodeCommand(command)
	if err != nil {
		return nil
	}

	switch cmd.Kind {
	case CommandPut:
		if err := kv.db.Put(cmd.Key, cmd.Value, nil); err != nil {
			panic(err)
		}
		return cmd.Value

	case CommandDelete:
		prev, err := kv.db.Get(cmd.Key, nil)
		if err != nil {
			return nil
		}
		if err := kv.db.Delete(cmd.Key, nil); err != nil {
			panic(err)
		}
		return prev
	}
	return nil
}

// Query returns the value stored under the query key, or nil.
func (kv *LevelDBKV) Query(query []byte) []byte {
	value, err := kv.db.Get(query, nil)
	if err != nil {
		return nil
	}
	return value
}
