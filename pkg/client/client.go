// Package client performs the zkpok login flow against a verifier service
// and calls protected endpoints with the resulting bearer token.
package client

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/allsmog/zkpok-go/pkg/auth"
	"github.com/allsmog/zkpok-go/pkg/crypto/curve"
	"github.com/allsmog/zkpok-go/pkg/crypto/pow"
	"github.com/allsmog/zkpok-go/pkg/crypto/random"
	"github.com/allsmog/zkpok-go/pkg/crypto/schnorr"
)

// StatusError is returned when the server answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, strings.TrimSpace(e.Body))
}

// Token is an access token obtained by Login.
type Token struct {
	AccessToken string
	ExpiresAt   time.Time
}

// Client holds a prover secret and talks to one verifier service.
type Client struct {
	baseURL    string
	audience   string
	secret     *curve.Scalar
	witness    *schnorr.Witness
	scheme     *schnorr.Scheme
	httpClient *http.Client

	mu    sync.Mutex
	token *Token
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the HTTP client used for requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithScheme sets the proof scheme. It must match the server's hash and
// domain.
func WithScheme(s *schnorr.Scheme) Option {
	return func(c *Client) {
		c.scheme = s
	}
}

// New creates a client for the service at baseURL. An empty audience lets
// the server choose its default.
func New(baseURL, audience string, secret *curve.Scalar, opts ...Option) (*Client, error) {
	witness, err := schnorr.NewWitness(secret)
	if err != nil {
		return nil, fmt.Errorf("invalid secret: %w", err)
	}

	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		audience:   audience,
		secret:     secret,
		witness:    witness,
		scheme:     schnorr.New(),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Witness returns the public witness for the client's secret.
func (c *Client) Witness() *schnorr.Witness {
	return c.witness
}

// Token returns the token from the last successful Login, or nil.
func (c *Client) Token() *Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token
}

// Register registers the client's witness with the server, solving the
// registration puzzle first when the server requires one.
func (c *Client) Register(ctx context.Context, meta map[string]string) error {
	req := auth.RegisterRequest{Witness: c.witness.String(), Meta: meta}

	var puzzle auth.PoWResponse
	if err := c.getJSON(ctx, "/register/pow", &puzzle); err != nil {
		return fmt.Errorf("failed to fetch registration puzzle: %w", err)
	}

	if puzzle.Enabled {
		sol, err := c.solveRegistration(ctx, puzzle)
		if err != nil {
			return err
		}
		req.PoW = sol
	}

	return c.postJSON(ctx, "/register", req, nil)
}

func (c *Client) solveRegistration(ctx context.Context, puzzle auth.PoWResponse) (*auth.PoWSolution, error) {
	timeslice, err := time.Parse(time.RFC3339, puzzle.Timeslice)
	if err != nil {
		return nil, fmt.Errorf("invalid puzzle timeslice: %w", err)
	}

	p, err := pow.NewPuzzle(auth.RegistrationSalt(c.witness.Bytes(), timeslice), puzzle.Params, puzzle.Difficulty)
	if err != nil {
		return nil, fmt.Errorf("invalid registration puzzle: %w", err)
	}

	sol, err := p.Solve(ctx, random.System)
	if err != nil {
		return nil, fmt.Errorf("failed to solve registration puzzle: %w", err)
	}

	return &auth.PoWSolution{Timeslice: puzzle.Timeslice, Nonce: sol.Nonce}, nil
}

// Login runs challenge and complete, storing and returning the token.
func (c *Client) Login(ctx context.Context) (*Token, error) {
	var challenge auth.ChallengeResponse
	if err := c.postJSON(ctx, "/auth/zk/challenge", auth.ChallengeRequest{
		Witness: c.witness.String(),
		Aud:     c.audience,
	}, &challenge); err != nil {
		return nil, fmt.Errorf("challenge failed: %w", err)
	}

	message, err := hex.DecodeString(challenge.Message)
	if err != nil {
		return nil, fmt.Errorf("invalid challenge message: %w", err)
	}

	proof, err := c.scheme.Prove(c.secret, message)
	if err != nil {
		return nil, fmt.Errorf("failed to prove: %w", err)
	}

	var resp auth.CompleteResponse
	if err := c.postJSON(ctx, "/auth/zk/complete", auth.CompleteRequest{
		SessionID: challenge.SessionID,
		Proof:     proof.String(),
	}, &resp); err != nil {
		return nil, fmt.Errorf("complete failed: %w", err)
	}

	token := &Token{
		AccessToken: resp.AccessToken,
		ExpiresAt:   time.Now().Add(time.Duration(resp.ExpiresIn) * time.Second),
	}

	c.mu.Lock()
	c.token = token
	c.mu.Unlock()

	return token, nil
}

// Get performs a GET on path with the current bearer token.
func (c *Client) Get(ctx context.Context, path string) ([]byte, error) {
	token := c.Token()
	if token == nil {
		return nil, fmt.Errorf("not logged in")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token.AccessToken)

	return c.do(req)
}

func (c *Client) getJSON(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	respBody, err := c.do(req)
	if err != nil {
		return err
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

func (c *Client) postJSON(ctx context.Context, path string, body, out interface{}) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	respBody, err := c.do(req)
	if err != nil {
		return err
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}
	}
	return nil
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	return respBody, nil
}
