// Package jit provides the tiered compilation manager for the Rubolt
// runtime: per-function tier bookkeeping, call-count driven promotion,
// invalidation, and code cache accounting.
//
// The manager never generates code. The evaluator calls RecordCall
// after each function invocation; when a function crosses the hot
// threshold at tier None the call returns a PromotionRequest, exactly
// once per function. The caller (or a background Worker) fulfills the
// request by invoking a CodeGenerator and handing the produced native
// code to Install, which copies it into an executable region owned by
// the code cache.
//
// # Tiers
//
// Tiers order strictly None < Baseline < Optimized and a function only
// ever moves up. Invalidate marks a function's code unsafe to execute
// without demoting it or dropping its handle, so statistics remain
// inspectable; dispatch must check Valid before jumping to native code
// and fall back to the interpreted path when it is false.
//
// # Concurrency
//
// RecordCall, Get, and ShouldCompile are called from the execution
// thread; Install may be called from a compile worker. A single coarse
// mutex guards the registry and its cache accounting; promotions are
// rare relative to calls, so contention is negligible.
package jit
