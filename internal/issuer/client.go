package issuer

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

	"irec-issuer/internal/observability/metrics"
)

var (
	// ErrAlreadyIssued is returned when the issuer already minted a
	// certificate for the request.
	ErrAlreadyIssued = errors.New("issuer: certificate already issued for request")
	errNotFound      = errors.New("issuer: not found")
)

const defaultTimeout = 10 * time.Second

// Client is a minimal REST client for the blockchain issuer service.
type Client struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewClient constructs an issuer client. A zero timeout uses 10s.
func NewClient(baseURL, token string, timeout time.Duration) (*Client, error) {
	if baseURL == "" {
		return nil, errors.New("issuer: empty base url")
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: timeout},
	}, nil
}

// IssueRequest asks the issuer to mint a certificate. Times are unix seconds
// and energy is a decimal Wh string.
type IssueRequest struct {
	To        string `json:"to"`
	DeviceID  string `json:"deviceId"`
	FromTime  int64  `json:"fromTime"`
	ToTime    int64  `json:"toTime"`
	Energy    string `json:"energy"`
	IsPrivate bool   `json:"isPrivate"`
	RequestID int64  `json:"requestId"`
}

// Issued describes a minted certificate.
type Issued struct {
	ID        int64  `json:"id"`
	BlockHash string `json:"blockHash"`
	TxHash    string `json:"txHash"`
	CreatedAt int64  `json:"createdAt"`
}

// CreationTime returns CreatedAt as a time.
func (i Issued) CreationTime() time.Time {
	if i.CreatedAt <= 0 {
		return time.Time{}
	}
	return time.Unix(i.CreatedAt, 0).UTC()
}

// Issue mints a certificate for an approved request.
func (c *Client) Issue(ctx context.Context, req IssueRequest) (issued Issued, err error) {
	if req.To == "" || req.DeviceID == "" || req.RequestID <= 0 {
		return Issued{}, errors.New("issuer: invalid issue request")
	}
	start := time.Now()
	defer func() {
		result := metrics.ResultSuccess
		if err != nil {
			result = metrics.ResultError
		}
		metrics.ObserveIssuerCall(result, time.Since(start))
	}()

	if err := c.doJSON(ctx, http.MethodPost, "/certificates", req, &issued); err != nil {
		return Issued{}, err
	}
	if issued.ID <= 0 {
		return Issued{}, errors.New("issuer: response without certificate id")
	}
	return issued, nil
}

// FindByRequest looks up the certificate minted for a request.
func (c *Client) FindByRequest(ctx context.Context, requestID int64) (Issued, bool, error) {
	var issued Issued
	err := c.doJSON(ctx, http.MethodGet, "/certificates/by-request/"+strconv.FormatInt(requestID, 10), nil, &issued)
	if errors.Is(err, errNotFound) {
		return Issued{}, false, nil
	}
	if err != nil {
		return Issued{}, false, err
	}
	return issued, issued.ID > 0, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, body any, out any) error {
	var reqBody *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewReader(payload)
	} else {
		reqBody = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return errNotFound
	case resp.StatusCode == http.StatusConflict:
		return ErrAlreadyIssued
	case resp.StatusCode >= 300:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("issuer: http %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
