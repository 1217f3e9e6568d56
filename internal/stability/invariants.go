//go:build !medguardian_debug

package stability

// strictInvariants panics on internal bookkeeping violations when true.
// Production builds degrade to a non-stable verdict instead.
const strictInvariants = false
