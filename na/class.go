// File: na/class.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// NA class (spec §3 "NA class", §6 "initialize/finalize/cleanup").

package na

import (
	"sync"
	"sync/atomic"

	"github.com/momentics/na/naconfig"
)

// FeatureFlag is a plugin-defined capability bit queried via
// Class.HasOptFeature (spec §6 "class.has_opt_feature(flag_bits)").
type FeatureFlag uint64

// Class is the process-wide handle for one plugin instance (spec §3).
// Immutable after Initialize returns, except for the context counter.
type Class struct {
	ops          *Ops
	Protocol     string
	Listen       bool
	ProgressMode naconfig.ProgressMode
	MaxIOV       int
	MaxContexts  uint8
	Features     FeatureFlag

	// PluginEndpoint is the plugin-private endpoint (e.g. smplugin's
	// *smplugin.Endpoint), opaque to the core.
	PluginEndpoint any

	contextCount atomic.Int32
	mu           sync.Mutex
}

// defaultMaxIOV matches spec §4.8's inline IOV buffer size; plugins may
// override via InitInfo in the future, but no init-info field targets it
// today.
const defaultMaxIOV = inlineIOVCount

// Initialize parses infoString, resolves the registered plugin factory,
// and initializes a new Class (spec §6 "initialize(info_string, listen,
// init_info?) -> Class").
func Initialize(infoString string, listen bool, initInfo *naconfig.InitInfo) (*Class, error) {
	parsed, err := ParseInfoString(infoString)
	if err != nil {
		return nil, err
	}
	factory, ok := lookupFactory(parsed.Protocol)
	if !ok {
		return nil, NewError("initialize", ProtoNoSupport)
	}
	if initInfo == nil {
		initInfo = &naconfig.InitInfo{}
	}

	ops, _, err := factory(parsed, listen, initInfo)
	if err != nil {
		return nil, err
	}

	class := &Class{
		ops:         ops,
		Protocol:    parsed.Protocol,
		Listen:      listen,
		MaxIOV:      defaultMaxIOV,
		MaxContexts: initInfo.MaxContexts,
		ProgressMode: initInfo.ProgressMode,
	}
	if class.MaxContexts == 0 {
		class.MaxContexts = 255
	}

	if ops.Initialize != nil {
		if err := ops.Initialize(class, parsed.Protocol, listen, initInfo); err != nil {
			return nil, err
		}
	}
	return class, nil
}

// Finalize tears down the class's plugin instance (spec §6 "finalize").
func Finalize(class *Class) error {
	if class.ops != nil && class.ops.Finalize != nil {
		return class.ops.Finalize(class)
	}
	return nil
}

var (
	cleanupHooksMu sync.Mutex
	cleanupHooks   []func()
)

// RegisterCleanupHook registers a process-wide best-effort cleanup
// function invoked by Cleanup (spec §4.4: orphaned shared-memory/socket
// file removal).
func RegisterCleanupHook(fn func()) {
	cleanupHooksMu.Lock()
	defer cleanupHooksMu.Unlock()
	cleanupHooks = append(cleanupHooks, fn)
}

// Cleanup runs every registered process-wide cleanup hook (spec §6
// "process-wide cleanup()").
func Cleanup() {
	cleanupHooksMu.Lock()
	hooks := append([]func(){}, cleanupHooks...)
	cleanupHooksMu.Unlock()
	for _, fn := range hooks {
		fn()
	}
}

// HasOptFeature reports whether flag is set in the class's advertised
// feature bitmask (spec §6).
func (c *Class) HasOptFeature(flag FeatureFlag) bool {
	return c.Features&flag != 0
}

// acquireContextSlot enforces MaxContexts (spec §3 data model table "max
// contexts"; spec §6 init-info "max_contexts: upper bound on contexts per
// class").
func (c *Class) acquireContextSlot() error {
	for {
		cur := c.contextCount.Load()
		if cur >= int32(c.MaxContexts) {
			return NewError("context_create", Busy)
		}
		if c.contextCount.CompareAndSwap(cur, cur+1) {
			return nil
		}
	}
}

func (c *Class) releaseContextSlot() {
	c.contextCount.Add(-1)
}

// OpCreate allocates a fresh op ID in the Completed state (spec §6
// "op_create(class, flags) -> OpId").
func (c *Class) OpCreate() *OpID {
	op := newOpID(c)
	if c.ops != nil && c.ops.OpCreate != nil {
		op.pluginPrivate = c.ops.OpCreate(c)
	}
	return op
}

// OpDestroy releases an op ID (spec §6 "op_destroy").
func (c *Class) OpDestroy(op *OpID) {
	if c.ops != nil && c.ops.OpDestroy != nil {
		c.ops.OpDestroy(c, op.pluginPrivate)
	}
	op.destroy()
}
