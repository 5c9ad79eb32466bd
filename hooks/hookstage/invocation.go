package hookstage

import (
	"encoding/json"
	"sync"
)

// HookResult represents the result of execution the concrete hook instance.
type HookResult[T any] struct {
	Reject        bool         // true value indicates rejection of the program execution at the specific stage
	NbrCode       int          // hook must provide NbrCode if the field Reject set to true
	Message       string       // holds arbitrary message added by hook
	ChangeSet     ChangeSet[T] // set of changes the module wants to apply to hook payload in case of successful execution
	Errors        []string
	Warnings      []string
	DebugMessages []string
	ModuleContext ModuleContext // holds values that the module wants to pass to itself at later stages
}

// ModuleInvocationContext holds data passed to the module hook during invocation.
type ModuleInvocationContext struct {
	// AccountID holds the account ID
	AccountID string
	// AccountConfig represents module config rewritten at the account-level.
	AccountConfig json.RawMessage
	// Endpoint represents the path of the current endpoint.
	Endpoint string
	// HookImplCode differentiates between multiple hooks of one module.
	HookImplCode string
	// ModuleContext holds values that the module passes to itself from the previous stages.
	ModuleContext ModuleContext
}

// ModuleContext holds arbitrary data passed between module hooks at different stages.
type ModuleContext map[string]interface{}

// ModuleContexts stores the context of every module for the lifetime of one auction. Stages
// running per bidder use it concurrently.
type ModuleContexts struct {
	sync.RWMutex
	ctxs map[string]ModuleContext
}

func NewModuleContexts() *ModuleContexts {
	return &ModuleContexts{ctxs: make(map[string]ModuleContext)}
}

// Put merges newCtx into the stored context of the module.
func (mc *ModuleContexts) Put(moduleName string, newCtx ModuleContext) {
	mc.Lock()
	defer mc.Unlock()

	stored, ok := mc.ctxs[moduleName]
	if !ok {
		stored = make(ModuleContext, len(newCtx))
		mc.ctxs[moduleName] = stored
	}
	for k, v := range newCtx {
		stored[k] = v
	}
}

// Get returns a copy of the stored context of the module.
func (mc *ModuleContexts) Get(moduleName string) (ModuleContext, bool) {
	mc.RLock()
	defer mc.RUnlock()

	stored, ok := mc.ctxs[moduleName]
	if !ok {
		return nil, false
	}
	ctx := make(ModuleContext, len(stored))
	for k, v := range stored {
		ctx[k] = v
	}
	return ctx, true
}
