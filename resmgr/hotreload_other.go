//go:build !linux

package resmgr

func newEventSource() eventSource { return newPollWatcher() }
