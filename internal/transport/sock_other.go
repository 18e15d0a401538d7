//go:build !linux

package transport

func dialNonblock(addr string) (int, error) {
	return -1, &ConnectError{Op: "socket", Addr: addr, Err: ErrUnsupported}
}

func connectResult(int) error               { return ErrUnsupported }
func sockRead(int, []byte) (int, error)     { return 0, ErrUnsupported }
func sockWrite(int, []byte) (int, error)    { return 0, ErrUnsupported }
func sockClose(int) error                   { return nil }
func listenTCP(string) (int, string, error) { return -1, "", ErrUnsupported }
func acceptConn(int) (int, string, error)   { return -1, "", ErrUnsupported }
