package main

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	_ "net/http/pprof"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/pkg/errors"
	"github.com/things-go/go-socks5"
	"github.com/urfave/cli"

	"github.com/gospdy/spdytun/internal/events"
	ioutil "github.com/gospdy/spdytun/internal/ioutil"
	"github.com/gospdy/spdytun/internal/spdysession"
	"github.com/gospdy/spdytun/internal/transport"
)

// scavengePeriod is how often the scavenger sweeps for expired sessions.
const scavengePeriod = 5

// VERSION is injected by build flags when packaging official binaries.
var VERSION = "SELFBUILD"

func main() {
	if VERSION == "SELFBUILD" {
		log.SetFlags(log.LstdFlags | log.Lshortfile)
	}

	app := cli.NewApp()
	app.Name = "spdytun"
	app.Usage = "client (SPDY session multiplexed over KCP)"
	app.Version = VERSION
	app.Flags = []cli.Flag{
		cli.StringFlag{Name: "localaddr,l", Value: ":12948", Usage: "local listen address (plain forward mode)"},
		cli.StringFlag{Name: "remoteaddr,r", Value: "vps:29900", Usage: "kcp server address"},
		cli.StringFlag{Name: "target,t", Value: "", Usage: "fixed upstream URL every accepted connection is proxied to (ignored when -socks is set)"},
		cli.BoolFlag{Name: "socks", Usage: "run a local SOCKS5 front end instead of fixed-target forwarding"},
		cli.StringFlag{Name: "key", Value: "it's a secret", Usage: "pre-shared secret between client and server", EnvVar: "SPDYTUN_KEY"},
		cli.StringFlag{Name: "crypt", Value: "aes", Usage: "aes, aes-128, aes-128-gcm, aes-192, salsa20, blowfish, twofish, cast5, 3des, tea, xtea, xor, sm4, none, null"},
		cli.StringFlag{Name: "mode", Value: "fast", Usage: "profiles: fast3, fast2, fast, normal, manual"},
		cli.IntFlag{Name: "mtu", Value: 1350},
		cli.IntFlag{Name: "sndwnd", Value: 128},
		cli.IntFlag{Name: "rcvwnd", Value: 512},
		cli.IntFlag{Name: "datashard", Value: 10},
		cli.IntFlag{Name: "parityshard", Value: 3},
		cli.IntFlag{Name: "dscp", Value: 0},
		cli.BoolFlag{Name: "nocomp"},
		cli.BoolFlag{Name: "acknodelay"},
		cli.IntFlag{Name: "nodelay"},
		cli.IntFlag{Name: "interval"},
		cli.IntFlag{Name: "resend"},
		cli.IntFlag{Name: "nc"},
		cli.IntFlag{Name: "sockbuf", Value: 4194304},
		cli.IntFlag{Name: "ratelimit", Value: 0},
		cli.IntFlag{Name: "streamwindow", Value: int(spdysession.DefaultStreamInitialWindow), Usage: "per-stream initial flow-control window"},
		cli.IntFlag{Name: "sessionwindow", Value: int(spdysession.DefaultSessionInitialWindow), Usage: "session-level initial flow-control window"},
		cli.IntFlag{Name: "maxstreams", Value: spdysession.DefaultMaxConcurrentStreams},
		cli.IntFlag{Name: "maxpush", Value: spdysession.DefaultMaxConcurrentPush},
		cli.BoolFlag{Name: "nosessionflow", Usage: "use per-stream-only flow control instead of STREAM_AND_SESSION"},
		cli.BoolFlag{Name: "noping", Usage: "disable PING-based liveness checking"},
		cli.IntFlag{Name: "autoexpire", Value: 0, Usage: "seconds before a session is torn down and redialed, 0 to disable"},
		cli.IntFlag{Name: "scavengettl", Value: 600},
		cli.IntFlag{Name: "conn", Value: 1, Usage: "number of parallel kcp connections/sessions to spread local connections across"},
		cli.StringFlag{Name: "snmplog", Value: ""},
		cli.IntFlag{Name: "snmpperiod", Value: 60},
		cli.BoolFlag{Name: "pprof"},
		cli.StringFlag{Name: "log", Value: ""},
		cli.BoolFlag{Name: "quiet"},
		cli.StringFlag{Name: "c", Value: "", Usage: "config from json file, which will override the command from shell"},
	}

	app.Action = func(c *cli.Context) error {
		config := Config{
			LocalAddr: c.String("localaddr"), RemoteAddr: c.String("remoteaddr"),
			Target: c.String("target"), Socks: c.Bool("socks"),
			Key: c.String("key"), Crypt: c.String("crypt"), Mode: c.String("mode"),
			MTU: c.Int("mtu"), SndWnd: c.Int("sndwnd"), RcvWnd: c.Int("rcvwnd"),
			DataShard: c.Int("datashard"), ParityShard: c.Int("parityshard"), DSCP: c.Int("dscp"),
			NoComp: c.Bool("nocomp"), AckNodelay: c.Bool("acknodelay"),
			NoDelay: c.Int("nodelay"), Interval: c.Int("interval"), Resend: c.Int("resend"), NoCongestion: c.Int("nc"),
			SockBuf: c.Int("sockbuf"), RateLimit: c.Int("ratelimit"),
			StreamWindow: c.Int("streamwindow"), SessionWindow: c.Int("sessionwindow"),
			MaxStreams: c.Int("maxstreams"), MaxPush: c.Int("maxpush"),
			NoSessionFlow: c.Bool("nosessionflow"), NoPing: c.Bool("noping"),
			AutoExpire: c.Int("autoexpire"), ScavengeTTL: c.Int("scavengettl"), Conn: c.Int("conn"),
			SnmpLog: c.String("snmplog"), SnmpPeriod: c.Int("snmpperiod"), Pprof: c.Bool("pprof"),
			Log: c.String("log"), Quiet: c.Bool("quiet"),
		}

		if c.String("c") != "" {
			checkError(parseJSONConfig(&config, c.String("c")))
		}
		if config.Conn <= 0 {
			config.Conn = 1
		}

		if config.Log != "" {
			f, err := os.OpenFile(config.Log, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
			checkError(err)
			defer f.Close()
			log.SetOutput(f)
		}

		switch config.Mode {
		case "normal":
			config.NoDelay, config.Interval, config.Resend, config.NoCongestion = 0, 40, 2, 1
		case "fast":
			config.NoDelay, config.Interval, config.Resend, config.NoCongestion = 0, 30, 2, 1
		case "fast2":
			config.NoDelay, config.Interval, config.Resend, config.NoCongestion = 1, 20, 2, 1
		case "fast3":
			config.NoDelay, config.Interval, config.Resend, config.NoCongestion = 1, 10, 2, 1
		}

		log.Println("version:", VERSION)
		log.Println("remote address:", config.RemoteAddr)
		log.Println("encryption:", config.Crypt)
		log.Println("compression:", !config.NoComp)

		key := transport.DeriveKey(config.Key)
		block, effectiveCrypt := transport.SelectBlockCrypt(config.Crypt, key)
		config.Crypt = effectiveCrypt
		if effectiveCrypt == "none" || effectiveCrypt == "null" {
			color.Red("warning: running with crypt=%s, the tunnel is unencrypted", effectiveCrypt)
		}

		sink := events.NewSNMPSink(config.SnmpLog, time.Duration(config.SnmpPeriod)*time.Second)
		if config.SnmpLog != "" {
			sink.Start()
			defer sink.Stop()
		}
		if config.Pprof {
			go http.ListenAndServe(":6060", nil)
		}

		kcpOpt := transport.DefaultKCPOptions()
		kcpOpt.DataShard, kcpOpt.ParityShard = config.DataShard, config.ParityShard
		kcpOpt.MTU, kcpOpt.SndWnd, kcpOpt.RcvWnd = config.MTU, config.SndWnd, config.RcvWnd
		kcpOpt.DSCP, kcpOpt.SockBuf = config.DSCP, config.SockBuf
		kcpOpt.NoDelay, kcpOpt.Interval, kcpOpt.Resend, kcpOpt.NoCongestion = config.NoDelay, config.Interval, config.Resend, config.NoCongestion
		kcpOpt.AckNodelay = config.AckNodelay
		kcpOpt.RateLimit = uint32(config.RateLimit)

		sessCfg := &spdysession.Config{
			Version:              spdysession.Version3,
			FlowControlMode:      spdysession.FlowControlStreamAndSession,
			StreamInitialWindow:  int32(config.StreamWindow),
			SessionInitialWindow: int32(config.SessionWindow),
			MaxConcurrentStreams: config.MaxStreams,
			MaxConcurrentPush:    config.MaxPush,
			EnablePing:           !config.NoPing,
			Events:               sink,
		}
		if config.NoSessionFlow {
			sessCfg.FlowControlMode = spdysession.FlowControlStreamOnly
		}

		createConn := func() (*spdysession.Session, error) {
			kcpconn, err := transport.DialKCP(config.RemoteAddr, block, kcpOpt)
			if err != nil {
				return nil, errors.Wrap(err, "client: dial kcp")
			}

			var conn spdysession.Transport = kcpconn
			if !config.NoComp {
				conn = transport.NewCompressedTransport(kcpconn)
			}

			sess, err := spdysession.NewSession(conn, sessCfg, config.RemoteAddr)
			if err != nil {
				return nil, errors.Wrap(err, "client: new session")
			}
			return sess, nil
		}

		waitConn := func() *spdysession.Session {
			for {
				if sess, err := createConn(); err == nil {
					return sess
				} else {
					log.Println("re-connecting:", err)
					time.Sleep(time.Second)
				}
			}
		}

		chScavenger := make(chan timedSession, 128)
		if config.AutoExpire > 0 {
			go scavenger(chScavenger, config.ScavengeTTL)
		}

		numConn := uint16(config.Conn)
		sessions := make([]timedSession, numConn)
		var rr uint16

		nextSession := func() *spdysession.Session {
			idx := rr % numConn
			if sessions[idx].session == nil || sessions[idx].session.AvailabilityState() == spdysession.SessionClosed ||
				(config.AutoExpire > 0 && time.Now().After(sessions[idx].expiryDate)) {
				sessions[idx].session = waitConn()
				sessions[idx].expiryDate = time.Now().Add(time.Duration(config.AutoExpire) * time.Second)
				if config.AutoExpire > 0 {
					chScavenger <- sessions[idx]
				}
			}
			rr++
			return sessions[idx].session
		}

		if config.Socks {
			return runSocks(config, nextSession)
		}
		return runForward(config, nextSession)
	}

	app.Run(os.Args)
}

// runForward listens on LocalAddr and proxies every accepted connection to
// the single fixed Target through a freshly created stream.
func runForward(config Config, nextSession func() *spdysession.Session) error {
	if config.Target == "" {
		return errors.New("client: -target is required unless -socks is set")
	}
	listener, err := net.Listen("tcp", config.LocalAddr)
	if err != nil {
		return errors.Wrap(err, "client: listen")
	}
	log.Println("listening on:", config.LocalAddr, "forwarding to:", config.Target)

	for {
		p1, err := listener.Accept()
		if err != nil {
			return errors.Wrap(err, "client: accept")
		}
		go handleClient(nextSession(), config.Target, p1, config.Quiet)
	}
}

// runSocks listens on LocalAddr and serves SOCKS5, dialing every requested
// destination as a new stream on the shared session(s) instead of net.Dial.
func runSocks(config Config, nextSession func() *spdysession.Session) error {
	dial := func(ctx context.Context, network, addr string) (net.Conn, error) {
		sess := nextSession()
		st, err := sess.CreateStream(ctx, spdysession.StreamBidirectional, addr, 3)
		if err != nil {
			return nil, err
		}
		return newStreamConn(sess, st), nil
	}

	server := socks5.NewServer(socks5.WithDial(dial))

	listener, err := net.Listen("tcp", config.LocalAddr)
	if err != nil {
		return errors.Wrap(err, "client: listen")
	}
	log.Println("socks5 listening on:", config.LocalAddr)

	for {
		conn, err := listener.Accept()
		if err != nil {
			return errors.Wrap(err, "client: accept")
		}
		go func() {
			if err := server.ServeConn(conn); err != nil {
				log.Println("socks5:", err)
			}
		}()
	}
}

// handleClient opens one stream against target on sess and pipes p1's
// bytes through it in both directions.
func handleClient(sess *spdysession.Session, target string, p1 net.Conn, quiet bool) {
	logln := func(v ...any) {
		if !quiet {
			log.Println(v...)
		}
	}

	defer p1.Close()
	st, err := sess.CreateStream(context.Background(), spdysession.StreamBidirectional, target, 3)
	if err != nil {
		logln("create stream:", err)
		return
	}
	defer st.Close()

	logln("stream opened", "in:", p1.RemoteAddr(), "out:", fmt.Sprint(target, "(", st.ID(), ")"))
	defer logln("stream closed", "in:", p1.RemoteAddr(), "out:", fmt.Sprint(target, "(", st.ID(), ")"))

	err1, err2 := ioutil.Pipe(p1, st)
	if err1 != nil {
		logln("pipe:", err1)
	}
	if err2 != nil {
		logln("pipe:", err2)
	}
}

func checkError(err error) {
	if err != nil {
		log.Printf("%+v\n", err)
		os.Exit(-1)
	}
}

// timedSession pairs a Session with the time it should be torn down and
// redialed, mirroring the expiring-connection idiom used for the raw kcp
// dial pool.
type timedSession struct {
	session    *spdysession.Session
	expiryDate time.Time
}

// scavenger periodically closes sessions past their expiry or already dead.
func scavenger(ch chan timedSession, ttlSeconds int) {
	ticker := time.NewTicker(scavengePeriod * time.Second)
	defer ticker.Stop()

	var list []timedSession
	for {
		select {
		case item := <-ch:
			list = append(list, timedSession{item.session, item.expiryDate.Add(time.Duration(ttlSeconds) * time.Second)})
		case <-ticker.C:
			var keep []timedSession
			for _, s := range list {
				switch {
				case s.session.AvailabilityState() == spdysession.SessionClosed:
					log.Println("scavenger: session normally closed:", s.session.LocalAddr())
				case time.Now().After(s.expiryDate):
					s.session.Close()
					log.Println("scavenger: session closed due to ttl:", s.session.LocalAddr())
				default:
					keep = append(keep, s)
				}
			}
			list = keep
		}
	}
}
