package homegraph

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"com.aviebrantz.smart-energy/pkg/auth"
	"com.aviebrantz.smart-energy/pkg/config"
	"github.com/apex/log"
	"github.com/google/uuid"
	"go.opencensus.io/stats"
	"go.opencensus.io/tag"
)

// Client talks to the Home Graph device API on behalf of one agent user.
type Client struct {
	baseURL     string
	agentUserID string
	creds       Credentials
	httpClient  *http.Client
	logger      *log.Entry
}

// NewClient creates a client. A nil httpClient gets one with the configured timeout.
func NewClient(cfg config.HomeGraphConfig, creds Credentials, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second}
	}
	return &Client{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		agentUserID: cfg.AgentUserID,
		creds:       creds,
		httpClient:  httpClient,
		logger:      log.WithField("module", "homegraph"),
	}
}

func (c *Client) AgentUserID() string {
	return c.agentUserID
}

// ReportState reports the state of one device.
func (c *Client) ReportState(ctx context.Context, req ReportRequest) (Response, error) {
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}
	body := reportStateBody{
		RequestID:   req.RequestID,
		AgentUserID: c.agentUser(req.AgentUserID),
		Payload: reportStatePayload{
			Devices: reportStateDevices{
				States: map[string]deviceState{
					req.DeviceID: {
						On:               req.On,
						Online:           req.Online,
						CurrentEnergyUse: req.CurrentEnergyUse,
					},
				},
			},
		},
	}
	return c.post(ctx, "reportState", reportStatePath, body)
}

// ExecuteCommand asks the provider to switch a device on or off.
func (c *Client) ExecuteCommand(ctx context.Context, req CommandRequest) (Response, error) {
	body := executeBody{
		AgentUserID: c.agentUser(req.AgentUserID),
		Commands: []executeCommand{
			{
				DeviceIDs: []string{req.DeviceID},
				Execution: []execution{
					{
						Command: commandOnOff,
						Params:  map[string]interface{}{"on": req.On},
					},
				},
			},
		},
	}
	return c.post(ctx, "execute", executePath, body)
}

func (c *Client) agentUser(id string) string {
	if id != "" {
		return id
	}
	return c.agentUserID
}

func (c *Client) post(ctx context.Context, op, path string, body interface{}) (Response, error) {
	token, err := c.creds.Token(ctx)
	if err != nil {
		return nil, err
	}
	if token == "" {
		return nil, auth.ErrUnauthenticated
	}

	startTime := time.Now()
	status := 0
	defer func() {
		mctx, terr := tag.New(ctx,
			tag.Insert(KeyMethod, op),
			tag.Insert(KeyStatus, strconv.Itoa(status)),
		)
		if terr != nil {
			c.logger.Errorf("err creating metric for call %v", terr)
			return
		}
		stats.Record(mctx, MLatencyMs.M(sinceInMilliseconds(startTime)), MCalls.M(1))
	}()

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("homegraph %s: encode request: %w", op, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, &TransportError{Op: op, Err: err}
	}
	httpReq.Header.Set("Authorization", "Bearer "+token)
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.logger.Warnf("%s failed: %v", op, err)
		return nil, &TransportError{Op: op, Err: err}
	}
	defer httpResp.Body.Close()
	status = httpResp.StatusCode

	raw, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, &TransportError{Op: op, StatusCode: status, Err: err}
	}

	decoded := make(Response)
	var decodeErr error
	if len(bytes.TrimSpace(raw)) > 0 {
		decodeErr = json.Unmarshal(raw, &decoded)
	}

	if status < 200 || status > 299 {
		if decodeErr != nil {
			decoded = Response{"body": string(raw)}
		}
		c.logger.Warnf("%s rejected with status %d", op, status)
		return nil, &TransportError{
			Op:         op,
			StatusCode: status,
			Payload:    decoded,
			Err:        errors.New(http.StatusText(status)),
		}
	}
	if decodeErr != nil {
		return nil, &TransportError{Op: op, StatusCode: status, Err: fmt.Errorf("decode response: %w", decodeErr)}
	}

	c.logger.WithField("status", status).Infof("%s done", op)
	return decoded, nil
}
