package server

import (
	"fmt"
	"net"
	"time"

	"github.com/golang/glog"
)

type tcpKeepAliveListener struct {
	*net.TCPListener
}

func (ln tcpKeepAliveListener) Accept() (net.Conn, error) {
	tc, err := ln.AcceptTCP()
	if err != nil {
		return nil, err
	}
	tc.SetKeepAlive(true)
	tc.SetKeepAlivePeriod(3 * time.Minute)
	return tc, nil
}

func newListener(address string) (net.Listener, error) {
	ln, err := net.Listen("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("Error listening for TCP connections on %s: %v", address, err)
	}

	if casted, ok := ln.(*net.TCPListener); ok {
		return tcpKeepAliveListener{casted}, nil
	}
	glog.Warning("net.Listen(\"tcp\", \"addr\") didn't return a TCPListener. Connections will not be kept alive.")
	return ln, nil
}
