package main

import (
	"fmt"
	"time"

	"github.com/samsamfire/gocandle/pkg/device"
	"github.com/samsamfire/gocandle/pkg/discovery"
	"gopkg.in/ini.v1"
)

const (
	DefaultInterface = "socketcan"
	DefaultChannel   = "can0"
	DefaultBitrate   = 1000000
)

type config struct {
	Interface        string
	Channel          string
	Bitrate          int
	RequestTimeout   time.Duration
	DiscoveryTimeout time.Duration
	Dictionary       string // Extra register dictionary file, optional
}

func defaultConfig() config {
	return config{
		Interface:        DefaultInterface,
		Channel:          DefaultChannel,
		Bitrate:          DefaultBitrate,
		RequestTimeout:   device.DefaultTimeout,
		DiscoveryTimeout: discovery.DefaultWindow,
	}
}

// Load settings from an ini file on top of the defaults.
//
//	[bus]
//	interface = socketcan
//	channel = can0
//	bitrate = 1000000
//	[timeouts]
//	request = 100ms
//	discovery = 500ms
//	[registers]
//	dictionary = custom.ini
func loadConfig(file any) (config, error) {
	cfg := defaultConfig()
	f, err := ini.Load(file)
	if err != nil {
		return cfg, err
	}
	bus := f.Section("bus")
	cfg.Interface = bus.Key("interface").MustString(cfg.Interface)
	cfg.Channel = bus.Key("channel").MustString(cfg.Channel)
	if bus.HasKey("bitrate") {
		cfg.Bitrate, err = bus.Key("bitrate").Int()
		if err != nil {
			return cfg, fmt.Errorf("bitrate : %v", err)
		}
	}
	timeouts := f.Section("timeouts")
	for key, value := range map[string]*time.Duration{
		"request":   &cfg.RequestTimeout,
		"discovery": &cfg.DiscoveryTimeout,
	} {
		if !timeouts.HasKey(key) {
			continue
		}
		*value, err = timeouts.Key(key).Duration()
		if err != nil {
			return cfg, fmt.Errorf("%v timeout : %v", key, err)
		}
		if *value <= 0 {
			return cfg, fmt.Errorf("%v timeout must be positive", key)
		}
	}
	cfg.Dictionary = f.Section("registers").Key("dictionary").String()
	return cfg, nil
}
