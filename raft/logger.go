package raft

import (
	"sync"

	"github.com/CrystalAnalyst/toydb/pkg/xlog"
)

// Logger defines logging interface for Raft.
type Logger interface {
	Panic(v ...interface{})
	Panicln(v ...interface{})
	Panicf(format string, v ...interface{})

	Fatal(v ...interface{})
	Fatalln(v ...interface{})
	Fatalf(format string, v ...interface{})

	Error(v ...interface{})
	Errorln(v ...interface{})
	Errorf(format string, v ...interface{})

	Warning(v ...interface{})
	Warningln(v ...interface{})
	Warningf(format string, v ...interface{})

	Print(v ...interface{})
	Println(v ...interface{})
	Printf(format string, v ...interface{})

	Info(v ...interface{})
	Infoln(v ...interface{})
	Infof(format string, v ...interface{})

	Debug(v ...interface{})
	Debugln(v ...interface{})
	Debugf(format string, v ...interface{})
}

// loggerFacade delegates to the currently-set Logger, so that a Config
// can swap the backing logger for the whole package.
type loggerFacade struct {
	mu sync.Mutex
	lg Logger
}

func (f *loggerFacade) SetLogger(lg Logger) {
	f.mu.Lock()
	f.lg = lg
	f.mu.Unlock()
}

func (f *loggerFacade) get() Logger {
	f.mu.Lock()
	lg := f.lg
	f.mu.Unlock()
	return lg
}

func (f *loggerFacade) Panic(v ...interface{})            { f.get().Panic(v...) }
func (f *loggerFacade) Panicln(v ...interface{})          { f.get().Panicln(v...) }
func (f *loggerFacade) Panicf(s string, v ...interface{}) { f.get().Panicf(s, v...) }

func (f *loggerFacade) Fatal(v ...interface{})            { f.get().Fatal(v...) }
func (f *loggerFacade) Fatalln(v ...interface{})          { f.get().Fatalln(v...) }
func (f *loggerFacade) Fatalf(s string, v ...interface{}) { f.get().Fatalf(s, v...) }

func (f *loggerFacade) Error(v ...interface{})            { f.get().Error(v...) }
func (f *loggerFacade) Errorln(v ...interface{})          { f.get().Errorln(v...) }
func (f *loggerFacade) Errorf(s string, v ...interface{}) { f.get().Errorf(s, v...) }

func (f *loggerFacade) Warning(v ...interface{})            { f.get().Warning(v...) }
func (f *loggerFacade) Warningln(v ...interface{})          { f.get().Warningln(v...) }
func (f *loggerFacade) Warningf(s string, v ...interface{}) { f.get().Warningf(s, v...) }

func (f *loggerFacade) Print(v ...interface{})            { f.get().Print(v...) }
func (f *loggerFacade) Println(v ...interface{})          { f.get().Println(v...) }
func (f *loggerFacade) Printf(s string, v ...interface{}) { f.get().Printf(s, v...) }

func (f *loggerFacade) Info(v ...interface{})            { f.get().Info(v...) }
func (f *loggerFacade) Infoln(v ...interface{})          { f.get().Infoln(v...) }
func (f *loggerFacade) Infof(s string, v ...interface{}) { f.get().Infof(s, v...) }

func (f *loggerFacade) Debug(v ...interface{})            { f.get().Debug(v...) }
func (f *loggerFacade) Debugln(v ...interface{})          { f.get().Debugln(v...) }
func (f *loggerFacade) Debugf(s string, v ...interface{}) { f.get().Debugf(s, v...) }

var raftLogger = &loggerFacade{lg: xlog.NewLogger("raft", xlog.INFO)}
