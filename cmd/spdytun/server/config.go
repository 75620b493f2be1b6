package main

import (
	"encoding/json"
	"os"

	"github.com/pkg/errors"
)

// Config bundles every flag the server accepts, either from the command
// line or from a JSON file passed via -c.
type Config struct {
	Listen string `json:"listen"`
	Target string `json:"target"`
	Key    string `json:"key"`
	Crypt  string `json:"crypt"`

	Mode         string `json:"mode"`
	MTU          int    `json:"mtu"`
	SndWnd       int    `json:"sndwnd"`
	RcvWnd       int    `json:"rcvwnd"`
	DataShard    int    `json:"datashard"`
	ParityShard  int    `json:"parityshard"`
	DSCP         int    `json:"dscp"`
	NoComp       bool   `json:"nocomp"`
	AckNodelay   bool   `json:"acknodelay"`
	NoDelay      int    `json:"nodelay"`
	Interval     int    `json:"interval"`
	Resend       int    `json:"resend"`
	NoCongestion int    `json:"nc"`
	SockBuf      int    `json:"sockbuf"`
	RateLimit    int    `json:"ratelimit"`
	TCP          bool   `json:"tcp"`

	SnmpLog    string `json:"snmplog"`
	SnmpPeriod int    `json:"snmpperiod"`
	Pprof      bool   `json:"pprof"`
	Log        string `json:"log"`
	Quiet      bool   `json:"quiet"`
}

// parseJSONConfig overrides config with whatever fields path sets.
func parseJSONConfig(config *Config, path string) error {
	file, err := os.Open(path)
	if err != nil {
		return errors.Wrap(err, "server: open config")
	}
	defer file.Close()

	if err := json.NewDecoder(file).Decode(config); err != nil {
		return errors.Wrap(err, "server: decode config")
	}
	return nil
}
