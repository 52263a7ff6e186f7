//go:build devbypass

package auth

// devBypassCompiled allows Config.DevelopmentMode. Only local builds use
// the devbypass tag.
const devBypassCompiled = true
