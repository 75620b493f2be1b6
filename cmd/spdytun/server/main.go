package main

import (
	"log"
	"net"
	"net/http"
	_ "net/http/pprof"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/pkg/errors"
	"github.com/urfave/cli"
	"github.com/xtaci/tcpraw"

	"github.com/gospdy/spdytun/internal/events"
	ioutil "github.com/gospdy/spdytun/internal/ioutil"
	"github.com/gospdy/spdytun/internal/transport"
)

// VERSION is injected by build flags when packaging official binaries.
var VERSION = "SELFBUILD"

func main() {
	if VERSION == "SELFBUILD" {
		log.SetFlags(log.LstdFlags | log.Lshortfile)
	}

	app := cli.NewApp()
	app.Name = "spdytun"
	app.Usage = "server (terminates the KCP tunnel, relays raw bytes to the upstream SPDY origin)"
	app.Version = VERSION
	app.Flags = []cli.Flag{
		cli.StringFlag{Name: "listen,l", Value: ":29900", Usage: "kcp server listen address"},
		cli.StringFlag{Name: "target,t", Value: "127.0.0.1:443", Usage: "upstream SPDY-speaking server address this tunnel terminates at"},
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
		cli.BoolFlag{Name: "tcp", Usage: "emulate a TCP connection on the wire via raw sockets (linux)"},
		cli.StringFlag{Name: "snmplog", Value: ""},
		cli.IntFlag{Name: "snmpperiod", Value: 60},
		cli.BoolFlag{Name: "pprof"},
		cli.StringFlag{Name: "log", Value: ""},
		cli.BoolFlag{Name: "quiet"},
		cli.StringFlag{Name: "c", Value: "", Usage: "config from json file, which will override the command from shell"},
	}

	app.Action = func(c *cli.Context) error {
		config := Config{
			Listen: c.String("listen"), Target: c.String("target"),
			Key: c.String("key"), Crypt: c.String("crypt"), Mode: c.String("mode"),
			MTU: c.Int("mtu"), SndWnd: c.Int("sndwnd"), RcvWnd: c.Int("rcvwnd"),
			DataShard: c.Int("datashard"), ParityShard: c.Int("parityshard"), DSCP: c.Int("dscp"),
			NoComp: c.Bool("nocomp"), AckNodelay: c.Bool("acknodelay"),
			NoDelay: c.Int("nodelay"), Interval: c.Int("interval"), Resend: c.Int("resend"), NoCongestion: c.Int("nc"),
			SockBuf: c.Int("sockbuf"), RateLimit: c.Int("ratelimit"), TCP: c.Bool("tcp"),
			SnmpLog: c.String("snmplog"), SnmpPeriod: c.Int("snmpperiod"),
			Pprof: c.Bool("pprof"), Log: c.String("log"), Quiet: c.Bool("quiet"),
		}

		if c.String("c") != "" {
			checkError(parseJSONConfig(&config, c.String("c")))
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
		log.Println("listening on:", config.Listen)
		log.Println("target:", config.Target)
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

		accept := func(listener *transport.KCPListener) {
			for {
				sess, err := listener.Accept()
				if err != nil {
					log.Printf("%+v", err)
					return
				}
				log.Println("remote address:", sess.RemoteAddr())
				go handleSession(sess, config.Target, config.NoComp, config.Quiet)
			}
		}

		if config.TCP {
			pconn, err := tcpraw.Listen("tcp", config.Listen)
			if err != nil {
				return errors.Wrap(err, "server: tcpraw listen")
			}
			tcpListener, err := transport.ListenKCPConn(pconn, block, kcpOpt)
			if err != nil {
				return errors.Wrap(err, "server: serve kcp over tcpraw")
			}
			log.Println("listening on:", config.Listen, "/tcp")
			go accept(tcpListener)
		}

		listener, err := transport.ListenKCP(config.Listen, block, kcpOpt)
		if err != nil {
			return errors.Wrap(err, "server: listen kcp")
		}
		log.Println("listening on:", config.Listen, "/udp")
		accept(listener)
		return nil
	}

	app.Run(os.Args)
}

// handleSession terminates one tunnel connection and relays its bytes,
// unmodified, to target. The session core's Session type is deliberately
// client-only (it never answers a SYN_STREAM), so this binary never parses
// SPDY frames itself; it simply hands the client's framed bytes on to a
// real SPDY-capable origin that can.
func handleSession(conn net.Conn, target string, noComp bool, quiet bool) {
	logln := func(v ...any) {
		if !quiet {
			log.Println(v...)
		}
	}

	var tunnel net.Conn = conn
	if !noComp {
		tunnel = transport.NewCompressedTransport(conn)
	}
	defer tunnel.Close()

	upstream, err := net.Dial("tcp", target)
	if err != nil {
		logln("dial target:", err)
		return
	}
	defer upstream.Close()

	logln("session opened", "in:", conn.RemoteAddr(), "out:", target)
	defer logln("session closed", "in:", conn.RemoteAddr(), "out:", target)

	err1, err2 := ioutil.Pipe(tunnel, upstream)
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
