// Package netudp wraps a connected UDP socket for single-attempt
// non-blocking I/O (spec.md §5 "the socket is placed in non-blocking
// mode"; §4.2/§4.3 "a write/read that would block returns immediately").
// Go's net.UDPConn hides this behind the runtime netpoller, so this
// package reaches under it via SyscallConn to drive the raw file
// descriptor directly, the way a poll()-based event loop expects.
package netudp

import (
	"errors"
	"fmt"
	"net"

	"github.com/higebu/netfd"
	"golang.org/x/net/ipv4"
	"golang.org/x/sys/unix"
)

// ErrWouldBlock is returned by TryRead/TryWrite when the socket has no
// data available (read) or no send-buffer space (write) right now. A
// connection-refused or connection-reset error, which a UDP socket reports
// while the peer is not up yet, is returned as ErrWouldBlock too.
var ErrWouldBlock = errors.New("netudp: operation would block")

// Socket is a connected UDP socket operated in non-blocking mode.
type Socket struct {
	conn *net.UDPConn
	fd   int
}

// Listen binds a UDP socket to the given local port (spec.md §6.2 sender
// "binds to the given port").
func Listen(port int) (*Socket, error) {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{Port: port})
	if err != nil {
		return nil, fmt.Errorf("netudp: listen :%d: %w", port, err)
	}
	return fromConn(conn)
}

// Dial connects a UDP socket to a remote host:port (spec.md §6.2 receiver
// "connects to the sender's address").
func Dial(host string, port int) (*Socket, error) {
	raddr, err := net.ResolveUDPAddr("udp", fmt.Sprintf("%s:%d", host, port))
	if err != nil {
		return nil, fmt.Errorf("netudp: resolve %s:%d: %w", host, port, err)
	}
	conn, err := net.DialUDP("udp", nil, raddr)
	if err != nil {
		return nil, fmt.Errorf("netudp: dial %s:%d: %w", host, port, err)
	}
	return fromConn(conn)
}

func fromConn(conn *net.UDPConn) (*Socket, error) {
	fd, err := netfd.GetFdFromConn(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("netudp: get raw fd: %w", err)
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		conn.Close()
		return nil, fmt.Errorf("netudp: set non-blocking: %w", err)
	}
	return &Socket{conn: conn, fd: fd}, nil
}

// Connect binds a socket that is reading broadcast/any-sender datagrams
// and then locks it to a single peer once that peer's address is known,
// mirroring the sender's "connect after first packet" handshake
// (spec.md §6.2).
func (s *Socket) Connect(addr net.Addr) error {
	udpAddr, ok := addr.(*net.UDPAddr)
	if !ok {
		return fmt.Errorf("netudp: connect: not a UDP address: %v", addr)
	}
	sa, err := udpAddrToSockaddr(udpAddr)
	if err != nil {
		return err
	}
	return unix.Connect(s.fd, sa)
}

// SetDSCP marks outgoing datagrams with the given DiffServ code point,
// repurposing the teacher's multicast TTL/TOS marking (grounded on
// internal/mcast) for unicast low-latency traffic instead.
func (s *Socket) SetDSCP(dscp int) error {
	pc := ipv4.NewConn(s.conn)
	return pc.SetTOS(dscp << 2)
}

// TryRead attempts exactly one read syscall. ErrWouldBlock means "no
// datagram pending right now, try again after the socket is readable."
//
// net.UDPConn.Read blocks the calling goroutine (via the runtime's
// netpoller) until data arrives; it never surfaces EAGAIN to the
// caller. A cooperative event loop needs the opposite: a single attempt
// that returns immediately either way. SyscallConn's Read callback
// gives us that, since the outer Read returns as soon as the callback
// reports done, regardless of whether the syscall succeeded.
func (s *Socket) TryRead(buf []byte) (int, net.Addr, error) {
	rc, err := s.conn.SyscallConn()
	if err != nil {
		return 0, nil, err
	}
	var n int
	var from unix.Sockaddr
	var syscallErr error
	ctrlErr := rc.Read(func(fd uintptr) bool {
		n, from, syscallErr = unix.Recvfrom(int(fd), buf, 0)
		return true
	})
	if ctrlErr != nil {
		return 0, nil, ctrlErr
	}
	if syscallErr != nil {
		if isWouldBlock(syscallErr) {
			return 0, nil, ErrWouldBlock
		}
		return 0, nil, syscallErr
	}
	return n, sockaddrToUDPAddr(from), nil
}

// TryWrite attempts exactly one write syscall to the connected peer.
func (s *Socket) TryWrite(buf []byte) (int, error) {
	rc, err := s.conn.SyscallConn()
	if err != nil {
		return 0, err
	}
	var n int
	var syscallErr error
	ctrlErr := rc.Write(func(fd uintptr) bool {
		n, syscallErr = unix.Write(int(fd), buf)
		return true
	})
	if ctrlErr != nil {
		return 0, ctrlErr
	}
	if syscallErr != nil {
		if isWouldBlock(syscallErr) {
			return 0, ErrWouldBlock
		}
		return 0, syscallErr
	}
	return n, nil
}

// TryWriteTo attempts exactly one write syscall to an explicit address,
// used by the receiver to send each ACK to the address the acknowledged
// datagram came from.
func (s *Socket) TryWriteTo(buf []byte, addr net.Addr) (int, error) {
	udpAddr, ok := addr.(*net.UDPAddr)
	if !ok {
		return 0, fmt.Errorf("netudp: write to: not a UDP address: %v", addr)
	}
	sa, err := udpAddrToSockaddr(udpAddr)
	if err != nil {
		return 0, err
	}

	rc, err := s.conn.SyscallConn()
	if err != nil {
		return 0, err
	}
	var syscallErr error
	ctrlErr := rc.Write(func(fd uintptr) bool {
		syscallErr = unix.Sendto(int(fd), buf, 0, sa)
		return true
	})
	if ctrlErr != nil {
		return 0, ctrlErr
	}
	if syscallErr != nil {
		if isWouldBlock(syscallErr) {
			return 0, ErrWouldBlock
		}
		return 0, syscallErr
	}
	return len(buf), nil
}

// Fd returns the raw file descriptor, for registering with an external
// readiness multiplexer (e.g. unix.Poll).
func (s *Socket) Fd() int { return s.fd }

// LocalAddr returns the socket's local address.
func (s *Socket) LocalAddr() net.Addr { return s.conn.LocalAddr() }

// Close releases the socket.
func (s *Socket) Close() error { return s.conn.Close() }

func isWouldBlock(err error) bool {
	if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK) {
		return true
	}
	if errors.Is(err, unix.ECONNREFUSED) || errors.Is(err, unix.ECONNRESET) {
		return true
	}
	type temporary interface{ Temporary() bool }
	var t temporary
	if errors.As(err, &t) {
		return t.Temporary()
	}
	return false
}

func udpAddrToSockaddr(addr *net.UDPAddr) (unix.Sockaddr, error) {
	ip4 := addr.IP.To4()
	if ip4 == nil {
		return nil, fmt.Errorf("netudp: only IPv4 is supported, got %v", addr.IP)
	}
	sa := &unix.SockaddrInet4{Port: addr.Port}
	copy(sa.Addr[:], ip4)
	return sa, nil
}

func sockaddrToUDPAddr(sa unix.Sockaddr) *net.UDPAddr {
	sa4, ok := sa.(*unix.SockaddrInet4)
	if !ok || sa4 == nil {
		return nil
	}
	ip := make(net.IP, net.IPv4len)
	copy(ip, sa4.Addr[:])
	return &net.UDPAddr{IP: ip, Port: sa4.Port}
}
