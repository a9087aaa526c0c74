package raft

import "github.com/CrystalAnalyst/toydb/pkg/xlog"

func init() {
	raftLogger.SetLogger(xlog.NewLogger("raft", xlog.CRITICAL))
}
