package log

import "sync"

// A ContextAdder attaches contextual fields (such as the current emulated
// time) to every log entry.
type ContextAdder interface {
	AddLogContext(z *EntryZ)
}

var (
	ctxmu    sync.RWMutex
	contexts []ContextAdder
)

func AddContext(c ContextAdder) {
	ctxmu.Lock()
	contexts = append(contexts, c)
	ctxmu.Unlock()
}

func RemoveContext(c ContextAdder) {
	ctxmu.Lock()
	defer ctxmu.Unlock()
	for i := range contexts {
		if contexts[i] == c {
			contexts = append(contexts[:i], contexts[i+1:]...)
			return
		}
	}
}

func addContexts(z *EntryZ) {
	ctxmu.RLock()
	for _, c := range contexts {
		c.AddLogContext(z)
	}
	ctxmu.RUnlock()
}
