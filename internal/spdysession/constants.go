package spdysession

import "time"

// Default window sizes and buffer bounds.
const (
	DefaultStreamInitialWindow  = 64 * 1024        // 64 KiB
	DefaultSessionInitialWindow = 10 * 1024 * 1024 // configurable, default larger than stream window

	MaxDataFrameChunk = 16 * 1024 // maximum per-frame DATA payload
	ReadBufferSize    = 8 * 1024  // fixed read buffer

	DefaultMaxConcurrentStreams = 100
	DefaultMaxConcurrentPush    = 32

	// MaxStreamID bounds the 31-bit stream id space, the default for
	// Session.maxStreamID. Config.MaxStreamIDForTest overrides it per
	// session so a test can reach exhaustion without emitting two billion
	// frames first.
	MaxStreamID = 0x7FFFFFFF

	// MaxBytesPerReadBurst bounds how many bytes the read loop processes
	// before re-posting itself, so one very chatty peer cannot starve other
	// goroutines scheduled on the runtime.
	MaxBytesPerReadBurst = 512 * 1024
)

// PING liveness defaults
const (
	DefaultConnectionAtRiskInterval = 10 * time.Second
	DefaultHungInterval             = 10 * time.Second
)

// PushedStreamMinLifetime is the minimum time an unclaimed pushed stream
// entry survives a sweep.
const PushedStreamMinLifetime = 300 * time.Second

// headerDictionary is the fixed SPDY/3 header-name/value compression
// dictionary: a fixed byte string, the same on both
// sides of the connection, supplied as the preset dictionary to the
// deflate stream so that common HTTP header names/values compress to a
// few bytes from the very first frame instead of needing a warm-up.
const headerDictionary = "" +
	"\x00\x00\x00\x07options\x00\x00\x00\x04head\x00\x00\x00\x04post" +
	"\x00\x00\x00\x03put\x00\x00\x00\x06delete\x00\x00\x00\x05trace" +
	"\x00\x00\x00\x06accept\x00\x00\x00\x0eaccept-charset" +
	"\x00\x00\x00\x0faccept-encoding\x00\x00\x00\x0faccept-language" +
	"\x00\x00\x00\x0daccept-ranges\x00\x00\x00\x03age\x00\x00\x00\x05allow" +
	"\x00\x00\x00\rauthorization\x00\x00\x00\rcache-control" +
	"\x00\x00\x00\nconnection\x00\x00\x00\x0ccontent-base" +
	"\x00\x00\x00\x10content-encoding\x00\x00\x00\x10content-language" +
	"\x00\x00\x00\x0econtent-length\x00\x00\x00\x10content-location" +
	"\x00\x00\x00\x0bcontent-md5\x00\x00\x00\rcontent-range" +
	"\x00\x00\x00\x0ccontent-type\x00\x00\x00\x04date\x00\x00\x00\x04etag" +
	"\x00\x00\x00\x06expect\x00\x00\x00\x07expires\x00\x00\x00\x04from" +
	"\x00\x00\x00\x04host\x00\x00\x00\x08if-match" +
	"\x00\x00\x00\x11if-modified-since\x00\x00\x00\rif-none-match" +
	"\x00\x00\x00\x08if-range\x00\x00\x00\x13if-unmodified-since" +
	"\x00\x00\x00\rlast-modified\x00\x00\x00\x08location" +
	"\x00\x00\x00\x0cmax-forwards\x00\x00\x00\x06pragma" +
	"\x00\x00\x00\x12proxy-authenticate\x00\x00\x00\x13proxy-authorization" +
	"\x00\x00\x00\x05range\x00\x00\x00\x07referer\x00\x00\x00\x07refresh" +
	"\x00\x00\x00\x0bretry-after\x00\x00\x00\x06server\x00\x00\x00\x02te" +
	"\x00\x00\x00\x07trailer\x00\x00\x00\x11transfer-encoding" +
	"\x00\x00\x00\x07upgrade\x00\x00\x00\nuser-agent\x00\x00\x00\x04vary" +
	"\x00\x00\x00\x03via\x00\x00\x00\x07warning\x00\x00\x00\x10www-authenticate" +
	"\x00\x00\x00\x06method\x00\x00\x00\x03get\x00\x00\x00\x06status" +
	"\x00\x00\x00\x06200 OK\x00\x00\x00\x07version\x00\x00\x00\x08HTTP/1.1" +
	"\x00\x00\x00\x03url\x00\x00\x00\x06public\x00\x00\x00\nset-cookie" +
	"\x00\x00\x00\nkeep-alive\x00\x00\x00\x06origin" +
	"100101201202205206300302303304305306307402405406407408409410411412413414415416417502504505" +
	"203 Non-Authoritative Information204 No Content301 Moved Permanently400 Bad Request401 Unauthorized" +
	"403 Forbidden404 Not Found405 Method Not Allowed406 Not Acceptable" +
	"407 Proxy Authentication Required408 Request Time-out409 Conflict410 Gone411 Length Required" +
	"412 Precondition Failed413 Request Entity Too Large414 Request-URI Too Large" +
	"415 Unsupported Media Type416 Requested Range Not Satisfiable417 Expectation Failed" +
	"500 Internal Server Error501 Not Implemented502 Bad Gateway503 Service Unavailable" +
	"504 Gateway Time-out505 HTTP Version Not Supported" +
	"charset=iso-8859-1utf-8gzip,deflate,sdchidentity,trailers"
