//go:build !linux

package netfilter

import (
	"context"
	"errors"
)

var errUnsupported = errors.New("ip_tables is only available on linux")

// SocketKernel is unavailable off linux; every call fails.
type SocketKernel struct{}

// NewSocketKernel returns a handle whose calls always fail.
func NewSocketKernel() *SocketKernel {
	return &SocketKernel{}
}

// Open implements Kernel.
func (k *SocketKernel) Open(context.Context, string) (*Table, error) {
	return nil, errUnsupported
}

// Replace implements Kernel.
func (k *SocketKernel) Replace(context.Context, *Table) error {
	return errUnsupported
}
