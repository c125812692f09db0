package eventbus

import "sync"

var (
	defaultOnce sync.Once
	defaultBus  *Bus
)

// Default lazily constructs and returns a package-level Bus for callers
// that want a shared instance without threading one through fx (spec.md
// §9 design note). Nothing in this module requires its use — entitycore's
// fx wiring constructs its own Bus via New, matching the teacher's
// preference for dependency-injected construction over global state.
func Default() *Bus {
	defaultOnce.Do(func() {
		defaultBus = New(nil)
	})
	return defaultBus
}
