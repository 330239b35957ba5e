//go:build !linux

package capture

const sessionScoped = false
