package coap

import (
	"bytes"
	"context"
	"crypto/tls"
	"io/ioutil"
	"strconv"
	"strings"
	"time"

	"com.aviebrantz.smart-energy/pkg/config"
	"com.aviebrantz.smart-energy/pkg/location"
	"com.aviebrantz.smart-energy/pkg/util"
	"github.com/pion/dtls/v2"
	coap "github.com/plgd-dev/go-coap/v2"
	"github.com/plgd-dev/go-coap/v2/message"
	"github.com/plgd-dev/go-coap/v2/message/codes"
	"github.com/plgd-dev/go-coap/v2/mux"

	"github.com/apex/log"
	"go.opencensus.io/stats"
	"go.opencensus.io/tag"
)

// LocationPath is the resource phones POST their samples to.
const LocationPath = "loc"

// SampleSink receives decoded location samples.
type SampleSink interface {
	Publish(ctx context.Context, s location.Sample) error
}

type CoAPGateway struct {
	router   *mux.Router
	samples  SampleSink
	logger   *log.Entry
	port     int
	tlsPort  int
	certFile string
	keyFile  string
}

func NewGateway(samples SampleSink, config *config.GatewayConfig) *CoAPGateway {
	router := mux.NewRouter()
	logger := log.WithField("module", "coap-gateway")
	return &CoAPGateway{
		logger:   logger,
		port:     config.Port,
		tlsPort:  config.SslPort,
		certFile: config.CertFile,
		keyFile:  config.KeyFile,
		router:   router,
		samples:  samples,
	}
}

// Middleware function, which will be called for each request.
func (cg *CoAPGateway) routerMiddleware(next mux.Handler) mux.Handler {
	return mux.HandlerFunc(func(w mux.ResponseWriter, r *mux.Message) {
		startTime := time.Now()
		status := codes.NotFound
		defer func() {
			ctx, err := tag.New(context.Background(),
				tag.Insert(KeyMethod, r.Code.String()),
				tag.Insert(KeyStatus, status.String()),
			)
			if err != nil {
				cg.logger.Errorf("err creating metric for request %v", err)
			}
			stats.Record(ctx, MLatencyMs.M(sinceInMilliseconds(startTime)))
			stats.Record(ctx, MRequests.M(1))
		}()

		path, err := r.Options.Path()
		if err == nil && isLocationPath(path) {
			if r.Code != codes.POST {
				status = codes.MethodNotAllowed
			} else {
				status = cg.handlePostLocation(w, r)
			}
			cg.respond(w, status)
			return
		}
		next.ServeCOAP(w, r)
	})
}

func isLocationPath(path string) bool {
	return strings.Trim(path, "/") == LocationPath
}

// sampleFormat maps a CoAP content format onto a sample codec. Bodies without
// a content format are taken as JSON text.
func sampleFormat(format message.MediaType) string {
	if format == message.AppCBOR {
		return location.FormatCBOR
	}
	return location.FormatJSON
}

func (cg *CoAPGateway) respond(w mux.ResponseWriter, status codes.Code) {
	var err error
	if status == codes.Changed {
		err = w.SetResponse(status, message.TextPlain, bytes.NewReader([]byte("OK")))
	} else {
		err = w.SetResponse(status, message.TextPlain, nil)
	}
	if err != nil {
		cg.logger.Errorf("cannot set response: %v", err)
	}
}

func (cg *CoAPGateway) handlePostLocation(w mux.ResponseWriter, req *mux.Message) codes.Code {
	if req.Body == nil {
		return codes.BadRequest
	}

	data, err := ioutil.ReadAll(req.Body)
	if err != nil {
		cg.logger.Warnf("cannot read request: %v", err)
		return codes.BadRequest
	}

	mediaType, err := req.Options.ContentFormat()
	if err != nil {
		mediaType = message.TextPlain
	}
	format := sampleFormat(mediaType)

	ctx, err := tag.New(req.Context, tag.Insert(KeyFormat, format))
	if err != nil {
		cg.logger.Errorf("err creating metric for request %v \n", err)
	}
	stats.Record(ctx, MMessageBytes.M(int64(len(data))))

	sample, err := location.Decode(format, data)
	if err != nil {
		cg.logger.Warnf("Invalid sample from %v: %v", w.Client().RemoteAddr(), err)
		return codes.BadRequest
	}

	if err := cg.samples.Publish(req.Context, sample); err != nil {
		cg.logger.Errorf("Err publishing to message router: %v", err)
		return codes.InternalServerError
	}
	stats.Record(ctx, MSamples.M(1))

	cg.logger.Debugf("Sample from %v: %v", w.Client().RemoteAddr(), sample.Coordinate)
	return codes.Changed
}

func (cg *CoAPGateway) Start() {
	cg.router.Use(cg.routerMiddleware)

	if err := registerMetrics(); err != nil {
		cg.logger.Errorf("Failed to register views: %v", err)
	}

	cg.logger.Info("Starting CoAP Gateway...")
	if cg.port > 0 {
		go func() {
			cg.logger.Fatalf("Error starting listener : %v",
				coap.ListenAndServe(
					"udp",
					":"+strconv.Itoa(cg.port),
					cg.router,
				))
		}()
	}

	if cg.tlsPort > 0 {
		certificate, err := util.GetCert(cg.certFile, cg.keyFile)
		if err != nil {
			cg.logger.Fatalf("err opening server cert: %v", err)
		}

		certPool, err := util.GetRootPool(cg.certFile)
		if err != nil {
			cg.logger.Fatalf("err parsing server cert: %v", err)
		}

		go func() {
			cg.logger.Fatalf("Error starting dtls listener : %v",
				coap.ListenAndServeDTLS(
					"udp",
					":"+strconv.Itoa(cg.tlsPort),
					&dtls.Config{
						Certificates:         []tls.Certificate{*certificate},
						ExtendedMasterSecret: dtls.RequireExtendedMasterSecret,
						ClientAuth:           dtls.RequireAndVerifyClientCert,
						ClientCAs:            certPool,
					},
					cg.router,
				))
		}()
	}
}
