// Package sandbox evaluates a host page's inline scripts in an isolated goja
// VM so the loader can read page-level globals such as debug flags.
//
// The VM exposes a window object aliased to the global scope, a console that
// records output, and inert timers. Module loaders and process access are
// removed. Scripts that throw are recorded and skipped; later scripts still run.
package sandbox
