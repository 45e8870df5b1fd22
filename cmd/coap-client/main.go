package main

import (
	"bytes"
	"context"
	"crypto/tls"
	"flag"
	"strconv"
	"time"

	"com.aviebrantz.smart-energy/pkg/geo"
	"com.aviebrantz.smart-energy/pkg/location"
	"com.aviebrantz.smart-energy/pkg/util"
	"github.com/apex/log"
	piondtls "github.com/pion/dtls/v2"
	"github.com/plgd-dev/go-coap/v2/dtls"
	"github.com/plgd-dev/go-coap/v2/message"
)

// Sends one location sample to the gateway:
//
//	coap-client [-addr 127.0.0.1:5689] <latitude> <longitude>
func main() {
	addr := flag.String("addr", "127.0.0.1:5689", "DTLS address of the CoAP gateway")
	certFile := flag.String("cert", "certs/client.pem", "client certificate, issued from the gateway root when missing")
	keyFile := flag.String("key", "certs/client-key.pem", "client key")
	rootFile := flag.String("root", "certs/server.pem", "gateway root certificate")
	rootKeyFile := flag.String("root-key", "certs/server-key.pem", "gateway root key, used to issue a missing client certificate")
	flag.Parse()

	if flag.NArg() != 2 {
		log.Fatalf("usage: coap-client [flags] <latitude> <longitude>")
	}
	lat, err := strconv.ParseFloat(flag.Arg(0), 64)
	if err != nil {
		log.Fatalf("invalid latitude: %v", err)
	}
	lon, err := strconv.ParseFloat(flag.Arg(1), 64)
	if err != nil {
		log.Fatalf("invalid longitude: %v", err)
	}

	certificate, err := util.GetClientCert(*rootFile, *rootKeyFile, *certFile, *keyFile)
	if err != nil {
		log.Fatalf("Error loading client certificate: %v", err)
	}

	certPool, err := util.GetRootPool(*rootFile)
	if err != nil {
		log.Fatalf("Error loading root certificate: %v", err)
	}

	co, err := dtls.Dial(*addr, &piondtls.Config{
		Certificates:         []tls.Certificate{*certificate},
		ExtendedMasterSecret: piondtls.RequireExtendedMasterSecret,
		RootCAs:              certPool,
	})
	if err != nil {
		log.Fatalf("Error dialing: %v", err)
	}

	body, err := location.Encode(location.FormatCBOR, location.Sample{
		Coordinate: geo.Coordinate{Latitude: lat, Longitude: lon},
		Time:       time.Now(),
	})
	if err != nil {
		log.Fatalf("Error encoding sample: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	resp, err := co.Post(ctx, "/loc", message.AppCBOR, bytes.NewReader(body))
	if err != nil {
		log.Fatalf("Error sending request: %v", err)
	}
	log.Infof("Response payload: %+v", resp)
}
