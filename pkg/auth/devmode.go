//go:build !devbypass

package auth

// devBypassCompiled is false in release builds, so Config.DevelopmentMode
// is rejected by NewResolver.
const devBypassCompiled = false
