//go:build linux

package transport

import (
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"

	"code.hybscloud.com/iox"
	"golang.org/x/sys/unix"
)

const listenBacklog = 128

func resolve(addr string) (unix.Sockaddr, int, error) {
	ta, err := net.ResolveTCPAddr("tcp", addr)
	if err != nil {
		return nil, 0, err
	}
	if ip4 := ta.IP.To4(); ip4 != nil || len(ta.IP) == 0 {
		sa := &unix.SockaddrInet4{Port: ta.Port}
		copy(sa.Addr[:], ip4)
		return sa, unix.AF_INET, nil
	}
	sa := &unix.SockaddrInet6{Port: ta.Port}
	copy(sa.Addr[:], ta.IP.To16())
	return sa, unix.AF_INET6, nil
}

func sockaddrString(sa unix.Sockaddr) string {
	switch a := sa.(type) {
	case *unix.SockaddrInet4:
		return net.JoinHostPort(net.IP(a.Addr[:]).String(), strconv.Itoa(a.Port))
	case *unix.SockaddrInet6:
		return net.JoinHostPort(net.IP(a.Addr[:]).String(), strconv.Itoa(a.Port))
	default:
		return fmt.Sprintf("%v", sa)
	}
}

func openStream(family int) (int, error) {
	fd, err := unix.Socket(family, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, unix.IPPROTO_TCP)
	if err != nil {
		return -1, err
	}
	_ = unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1)
	return fd, nil
}

// dialNonblock starts a TCP connect to addr and returns as soon as the
// kernel accepted the attempt.
func dialNonblock(addr string) (int, error) {
	sa, family, err := resolve(addr)
	if err != nil {
		return -1, &ConnectError{Op: "resolve", Addr: addr, Err: err}
	}
	fd, err := openStream(family)
	if err != nil {
		return -1, &ConnectError{Op: "socket", Addr: addr, Err: err}
	}
	if err := unix.Connect(fd, sa); err != nil && !errors.Is(err, unix.EINPROGRESS) {
		_ = unix.Close(fd)
		return -1, &ConnectError{Op: "connect", Addr: addr, Err: err}
	}
	return fd, nil
}

// connectResult reports the outcome of a pending connect: nil when
// established, iox.ErrWouldBlock while in flight, or the socket error.
func connectResult(fd int) error {
	v, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR)
	if err != nil {
		return err
	}
	if v != 0 {
		return unix.Errno(v)
	}
	if _, err := unix.Getpeername(fd); err != nil {
		if errors.Is(err, unix.ENOTCONN) {
			return iox.ErrWouldBlock
		}
		return err
	}
	return nil
}

func sockRead(fd int, p []byte) (int, error) {
	n, err := unix.Read(fd, p)
	switch {
	case err == nil && n == 0:
		return 0, io.EOF
	case err == nil:
		return n, nil
	case errors.Is(err, unix.EAGAIN), errors.Is(err, unix.EINTR):
		return 0, iox.ErrWouldBlock
	default:
		return 0, err
	}
}

func sockWrite(fd int, p []byte) (int, error) {
	n, err := unix.Write(fd, p)
	if n < 0 {
		n = 0
	}
	switch {
	case err == nil:
		return n, nil
	case errors.Is(err, unix.EAGAIN), errors.Is(err, unix.EINTR):
		return n, iox.ErrWouldBlock
	default:
		return n, err
	}
}

func sockClose(fd int) error {
	return unix.Close(fd)
}

func listenTCP(addr string) (int, string, error) {
	sa, family, err := resolve(addr)
	if err != nil {
		return -1, "", err
	}
	fd, err := openStream(family)
	if err != nil {
		return -1, "", err
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		_ = unix.Close(fd)
		return -1, "", err
	}
	if err := unix.Bind(fd, sa); err != nil {
		_ = unix.Close(fd)
		return -1, "", err
	}
	if err := unix.Listen(fd, listenBacklog); err != nil {
		_ = unix.Close(fd)
		return -1, "", err
	}
	bound, err := unix.Getsockname(fd)
	if err != nil {
		_ = unix.Close(fd)
		return -1, "", err
	}
	return fd, sockaddrString(bound), nil
}

func acceptConn(lfd int) (int, string, error) {
	fd, sa, err := unix.Accept4(lfd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
	if err != nil {
		if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EINTR) || errors.Is(err, unix.ECONNABORTED) {
			return -1, "", iox.ErrWouldBlock
		}
		return -1, "", err
	}
	_ = unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1)
	return fd, sockaddrString(sa), nil
}
