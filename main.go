package main

import (
	"flag"

	"github.com/golang/glog"
	"github.com/prebid/prebid-auction/config"
	"github.com/prebid/prebid-auction/router"
	"github.com/prebid/prebid-auction/server"
	"github.com/spf13/viper"
)

// Version and Rev are set at build time:
//
//	go build -ldflags "-X main.Version=`git describe --tags` -X main.Rev=`git rev-parse --short HEAD`"
var (
	Version string
	Rev     string
)

func main() {
	flag.Parse() // required for glog flags and testing package flags

	cfg, err := loadConfig()
	if err != nil {
		glog.Exitf("Configuration could not be loaded or did not pass validation: %v", err)
	}

	if err := serve(cfg); err != nil {
		glog.Exitf("prebid-auction failed: %v", err)
	}
}

const configFileName = "pba"

func loadConfig() (*config.Configuration, error) {
	v := viper.New()
	config.SetupViper(v, configFileName)
	return config.New(v)
}

func serve(cfg *config.Configuration) error {
	r, err := router.New(cfg, nil)
	if err != nil {
		return err
	}
	defer r.Shutdown()

	corsRouter := router.SupportCORS(r)
	return server.Listen(cfg, router.NoCache{Handler: corsRouter}, router.Admin(Version, Rev), r.MetricsEngine)
}
