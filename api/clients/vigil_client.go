package clients

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ruteri/tee-vigil/cryptoutils"
	"github.com/ruteri/tee-vigil/interfaces"
)

const (
	InstantiatePath = "/api/v1/instantiate"
	CallPath        = "/api/v1/call"
)

// VigilClient issues signed requests to a vigil server.
type VigilClient struct {
	// ServerAddr is the base URL of the server.
	ServerAddr string

	// Format is the wire format of requests and responses.
	Format interfaces.WireFormat

	HTTPClient *http.Client

	key *ecdsa.PrivateKey
	now func() time.Time
}

// NewVigilClient creates a JSON client acting as the owner of key.
func NewVigilClient(serverAddr string, key *ecdsa.PrivateKey) *VigilClient {
	return &VigilClient{
		ServerAddr: strings.TrimSuffix(serverAddr, "/"),
		Format:     interfaces.JSONFormat,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
		key:        key,
		now:        time.Now,
	}
}

// Identity returns the identity the server attributes requests to.
func (c *VigilClient) Identity() interfaces.Identity {
	return cryptoutils.IdentityOf(c.key)
}

func (c *VigilClient) Instantiate(ctx context.Context) error {
	_, err := c.do(ctx, InstantiatePath, interfaces.InstantiateRequest{})
	return err
}

func (c *VigilClient) CreateSecret(ctx context.Context, name string, value []byte, set interfaces.RevelationSet, revelationTimestamp uint64) error {
	_, err := c.do(ctx, CallPath, interfaces.CreateSecretRequest{
		Name:                name,
		Value:               value,
		RevelationSet:       set,
		RevelationTimestamp: revelationTimestamp,
	})
	return err
}

func (c *VigilClient) ResetRevelationTimestamp(ctx context.Context, name string, revelationTimestamp uint64) error {
	_, err := c.do(ctx, CallPath, interfaces.ResetRevelationTimestampRequest{
		Name:                name,
		RevelationTimestamp: revelationTimestamp,
	})
	return err
}

func (c *VigilClient) DeleteSecret(ctx context.Context, name string) error {
	_, err := c.do(ctx, CallPath, interfaces.DeleteSecretRequest{Name: name})
	return err
}

func (c *VigilClient) GetRevelationTimestamp(ctx context.Context, owner interfaces.Identity, name string) (uint64, error) {
	resp, err := c.do(ctx, CallPath, interfaces.GetRevelationTimestampRequest{Owner: owner, Name: name})
	if err != nil {
		return 0, err
	}
	ts, ok := resp.(interfaces.RevelationTimestampResponse)
	if !ok {
		return 0, unexpectedResponse(resp)
	}
	return ts.Timestamp, nil
}

// GetRevelationSet returns the revelation set of one of the caller's secrets.
func (c *VigilClient) GetRevelationSet(ctx context.Context, name string) (interfaces.RevelationSet, error) {
	resp, err := c.do(ctx, CallPath, interfaces.GetRevelationSetRequest{Name: name})
	if err != nil {
		return interfaces.RevelationSet{}, err
	}
	set, ok := resp.(interfaces.RevelationSetResponse)
	if !ok {
		return interfaces.RevelationSet{}, unexpectedResponse(resp)
	}
	return set.Set, nil
}

func (c *VigilClient) GetSecretValue(ctx context.Context, owner interfaces.Identity, name string) ([]byte, error) {
	resp, err := c.do(ctx, CallPath, interfaces.GetSecretValueRequest{Owner: owner, Name: name})
	if err != nil {
		return nil, err
	}
	value, ok := resp.(interfaces.SecretValueResponse)
	if !ok {
		return nil, unexpectedResponse(resp)
	}
	return value.Value, nil
}

func unexpectedResponse(resp interfaces.Response) error {
	return fmt.Errorf("unexpected %s response", resp.Kind())
}

func (c *VigilClient) do(ctx context.Context, path string, req interfaces.Request) (interfaces.Response, error) {
	body, err := c.Format.MarshalRequest(req)
	if err != nil {
		return nil, err
	}

	signed := cryptoutils.SignedRequest{
		Method:    http.MethodPost,
		Path:      path,
		Timestamp: c.now().Unix(),
		Nonce:     cryptoutils.NewNonce(),
		Body:      body,
	}
	sig, err := cryptoutils.SignRequest(c.key, signed)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.ServerAddr+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", c.Format.ContentType)
	httpReq.Header.Set("Accept", c.Format.ContentType)
	httpReq.Header.Set(cryptoutils.SignatureHeader, sig)
	httpReq.Header.Set(cryptoutils.TimestampHeader, strconv.FormatInt(signed.Timestamp, 10))
	httpReq.Header.Set(cryptoutils.NonceHeader, signed.Nonce)

	httpResp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("could not request %s: %w", path, err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("could not read response of %s: %w", path, err)
	}

	// Registry errors come back as an error envelope in the negotiated
	// format; anything else that is not a 200 is a transport failure.
	if httpResp.StatusCode != http.StatusOK && !strings.HasPrefix(httpResp.Header.Get("Content-Type"), c.Format.ContentType) {
		return nil, fmt.Errorf("%s returned error %d: %s", path, httpResp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	return c.Format.UnmarshalResponse(respBody)
}
