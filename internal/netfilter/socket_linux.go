//go:build linux

package netfilter

import (
	"context"
	"fmt"
	"runtime"
	"unsafe"

	"golang.org/x/sys/unix"
)

// SocketKernel talks to ip_tables through getsockopt/setsockopt on a raw
// IPv4 socket. It needs CAP_NET_ADMIN.
type SocketKernel struct{}

// NewSocketKernel returns the host kernel handle.
func NewSocketKernel() *SocketKernel {
	return &SocketKernel{}
}

// Open implements Kernel.
func (k *SocketKernel) Open(ctx context.Context, name string) (*Table, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(name) >= XT_TABLE_MAXNAMELEN {
		return nil, fmt.Errorf("table name %q too long", name)
	}

	fd, err := openSocket()
	if err != nil {
		return nil, err
	}
	defer unix.Close(fd)

	infoBuf := make([]byte, SizeOfIPTGetinfo)
	copy(infoBuf, name)
	if err := getsockopt(fd, IPT_SO_GET_INFO, infoBuf); err != nil {
		return nil, fmt.Errorf("IPT_SO_GET_INFO %s: %w", name, err)
	}
	info, err := decodeInfo(infoBuf)
	if err != nil {
		return nil, err
	}

	entriesBuf := make([]byte, SizeOfIPTGetEntries+int(info.Size))
	copy(entriesBuf, name)
	byteOrder.PutUint32(entriesBuf[getEntriesSizeField:], info.Size)
	if err := getsockopt(fd, IPT_SO_GET_ENTRIES, entriesBuf); err != nil {
		return nil, fmt.Errorf("IPT_SO_GET_ENTRIES %s: %w", name, err)
	}

	table, err := Decode(info, entriesBuf[SizeOfIPTGetEntries:])
	if err != nil {
		return nil, err
	}
	table.NumEntries = info.NumEntries
	return table, nil
}

// Replace implements Kernel.
func (k *SocketKernel) Replace(ctx context.Context, t *Table) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	info, blob, err := Encode(t)
	if err != nil {
		return err
	}

	fd, err := openSocket()
	if err != nil {
		return err
	}
	defer unix.Close(fd)

	// The kernel writes the old table's counters here; it must hold one
	// xt_counters per entry of the table being replaced.
	counters := make([]byte, SizeOfXTCounters*max(int(t.NumEntries), 1))
	header := replaceHeader(info, t.NumEntries, uint64(uintptr(unsafe.Pointer(&counters[0]))))
	buf := append(header, blob...)

	err = setsockopt(fd, IPT_SO_SET_REPLACE, buf)
	runtime.KeepAlive(counters)
	if err != nil {
		return fmt.Errorf("IPT_SO_SET_REPLACE %s: %w", t.Name, err)
	}
	return nil
}

func openSocket() (int, error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_RAW|unix.SOCK_CLOEXEC, unix.IPPROTO_RAW)
	if err != nil {
		return -1, fmt.Errorf("open raw socket: %w", err)
	}
	return fd, nil
}

func getsockopt(fd, opt int, buf []byte) error {
	size := uint32(len(buf))
	_, _, errno := unix.Syscall6(unix.SYS_GETSOCKOPT, uintptr(fd), unix.SOL_IP, uintptr(opt),
		uintptr(unsafe.Pointer(&buf[0])), uintptr(unsafe.Pointer(&size)), 0)
	if errno != 0 {
		return errno
	}
	return nil
}

func setsockopt(fd, opt int, buf []byte) error {
	_, _, errno := unix.Syscall6(unix.SYS_SETSOCKOPT, uintptr(fd), unix.SOL_IP, uintptr(opt),
		uintptr(unsafe.Pointer(&buf[0])), uintptr(len(buf)), 0)
	if errno != 0 {
		return errno
	}
	return nil
}
