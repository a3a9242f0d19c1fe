//go:build !linux

package padsvc

func registerPlatformBackends(*BackendRegistry) {}
