// Package transport provides the concrete spdysession.Transport
// implementations a session actually runs over: a KCP-backed reliable UDP
// socket, an optional snappy-compressed wrapper, and a cipher/key-derivation
// menu covering the usual kcptun-style cipher suite.
package transport

import (
	"crypto/sha1"
	"log"
	"net"

	"github.com/pkg/errors"
	kcp "github.com/xtaci/kcp-go/v5"
	"golang.org/x/crypto/pbkdf2"
)

// saltKCP is the fixed PBKDF2 salt session keys are derived with; kept
// identical to kcptun's so operators porting a key from existing config
// need no conversion.
const saltKCP = "kcp-go"

// DeriveKey expands a pre-shared passphrase into cipher key material:
// 4096 rounds of PBKDF2-HMAC-SHA1 over a fixed salt, producing 32 bytes
// (callers slice down to the cipher's key size).
func DeriveKey(passphrase string) []byte {
	return pbkdf2.Key([]byte(passphrase), []byte(saltKCP), 4096, 32, sha1.New)
}

// cryptMethod pairs the key size a cipher needs with a constructor over
// the derived key.
type cryptMethod struct {
	keySize int
	build   func(key []byte) (kcp.BlockCrypt, error)
}

var cryptMethods = map[string]cryptMethod{
	"null":        {32, func(key []byte) (kcp.BlockCrypt, error) { return nil, nil }},
	"sm4":         {16, kcp.NewSM4BlockCrypt},
	"tea":         {16, kcp.NewTEABlockCrypt},
	"xor":         {32, kcp.NewSimpleXORBlockCrypt},
	"none":        {32, kcp.NewNoneBlockCrypt},
	"aes":         {32, kcp.NewAESBlockCrypt},
	"aes-128":     {16, kcp.NewAESBlockCrypt},
	"aes-192":     {24, kcp.NewAESBlockCrypt},
	"blowfish":    {32, kcp.NewBlowfishBlockCrypt},
	"twofish":     {32, kcp.NewTwofishBlockCrypt},
	"cast5":       {16, kcp.NewCast5BlockCrypt},
	"3des":        {24, kcp.NewTripleDESBlockCrypt},
	"xtea":        {16, kcp.NewXTEABlockCrypt},
	"salsa20":     {32, kcp.NewSalsa20BlockCrypt},
	"aes-128-gcm": {16, kcp.NewAESGCMCrypt},
}

// SelectBlockCrypt builds the named cipher over a derived key, falling
// back to plain AES-256 (and logging why) on an unknown name or a
// construction failure.
func SelectBlockCrypt(method string, key []byte) (kcp.BlockCrypt, string) {
	m, ok := cryptMethods[method]
	if ok {
		size := m.keySize
		if size > len(key) {
			size = len(key)
		}
		block, err := m.build(key[:size])
		if err == nil {
			return block, method
		}
		log.Printf("transport: crypt %q failed (%v), falling back to aes", method, err)
	} else {
		log.Printf("transport: unknown crypt %q, falling back to aes", method)
	}
	block, _ := kcp.NewAESBlockCrypt(key)
	return block, "aes"
}

// KCPOptions holds the transport-tuning flags that apply regardless of
// role (client dial vs server listen).
type KCPOptions struct {
	DataShard    int
	ParityShard  int
	MTU          int
	SndWnd       int
	RcvWnd       int
	DSCP         int
	SockBuf      int
	NoDelay      int
	Interval     int
	Resend       int
	NoCongestion int
	AckNodelay   bool
	RateLimit    uint32
	StreamMode   bool
}

// DefaultKCPOptions mirrors kcptun's "fast" profile defaults.
func DefaultKCPOptions() KCPOptions {
	return KCPOptions{
		DataShard:    10,
		ParityShard:  3,
		MTU:          1350,
		SndWnd:       128,
		RcvWnd:       512,
		SockBuf:      4194304,
		NoDelay:      0,
		Interval:     30,
		Resend:       2,
		NoCongestion: 1,
		StreamMode:   true,
	}
}

func applyOptions(sess *kcp.UDPSession, opt KCPOptions) {
	sess.SetStreamMode(opt.StreamMode)
	sess.SetWriteDelay(false)
	sess.SetNoDelay(opt.NoDelay, opt.Interval, opt.Resend, opt.NoCongestion)
	sess.SetWindowSize(opt.SndWnd, opt.RcvWnd)
	sess.SetMtu(opt.MTU)
	sess.SetACKNoDelay(opt.AckNodelay)
	sess.SetRateLimit(opt.RateLimit)

	if err := sess.SetDSCP(opt.DSCP); err != nil {
		log.Println("transport: SetDSCP:", err)
	}
	if err := sess.SetReadBuffer(opt.SockBuf); err != nil {
		log.Println("transport: SetReadBuffer:", err)
	}
	if err := sess.SetWriteBuffer(opt.SockBuf); err != nil {
		log.Println("transport: SetWriteBuffer:", err)
	}
}

// DialKCP opens a client-side KCP session to remoteAddr, applying block
// and opt.
func DialKCP(remoteAddr string, block kcp.BlockCrypt, opt KCPOptions) (*kcp.UDPSession, error) {
	sess, err := kcp.DialWithOptions(remoteAddr, block, opt.DataShard, opt.ParityShard)
	if err != nil {
		return nil, errors.Wrap(err, "transport: dial kcp")
	}
	applyOptions(sess, opt)
	return sess, nil
}

// KCPListener wraps *kcp.Listener, applying opt to every accepted session
// before handing it back.
type KCPListener struct {
	ln  *kcp.Listener
	opt KCPOptions
}

// ListenKCP opens a server-side KCP listener on laddr.
func ListenKCP(laddr string, block kcp.BlockCrypt, opt KCPOptions) (*KCPListener, error) {
	ln, err := kcp.ListenWithOptions(laddr, block, opt.DataShard, opt.ParityShard)
	if err != nil {
		return nil, errors.Wrap(err, "transport: listen kcp")
	}
	return &KCPListener{ln: ln, opt: opt}, nil
}

// ListenKCPConn runs KCP over an already-established packet connection
// (typically one opened by tcpraw, to emulate a plain TCP connection on
// the wire) instead of owning its own UDP socket.
func ListenKCPConn(pconn net.PacketConn, block kcp.BlockCrypt, opt KCPOptions) (*KCPListener, error) {
	ln, err := kcp.ServeConn(block, opt.DataShard, opt.ParityShard, pconn)
	if err != nil {
		return nil, errors.Wrap(err, "transport: serve kcp conn")
	}
	return &KCPListener{ln: ln, opt: opt}, nil
}

// Accept blocks for the next inbound session, tuned per opt.
func (l *KCPListener) Accept() (*kcp.UDPSession, error) {
	sess, err := l.ln.AcceptKCP()
	if err != nil {
		return nil, errors.Wrap(err, "transport: accept kcp")
	}
	applyOptions(sess, l.opt)
	return sess, nil
}

// Close shuts the listener down; accepted sessions are unaffected.
func (l *KCPListener) Close() error { return l.ln.Close() }

// Addr reports the local listening address.
func (l *KCPListener) Addr() net.Addr { return l.ln.Addr() }

// SetReadBuffer/SetDSCP apply per-listener socket tuning right after
// ListenWithOptions, before the accept loop starts.
func (l *KCPListener) SetReadBuffer(bytes int) error { return l.ln.SetReadBuffer(bytes) }
func (l *KCPListener) SetDSCP(dscp int) error        { return l.ln.SetDSCP(dscp) }
