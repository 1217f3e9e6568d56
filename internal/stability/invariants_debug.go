//go:build medguardian_debug

package stability

// strictInvariants panics on internal bookkeeping violations in debug builds.
const strictInvariants = true
