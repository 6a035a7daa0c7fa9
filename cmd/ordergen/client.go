package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/example/order-pipeline/internal/models"
)

var errUnauthorized = errors.New("unauthorized")

// apiClient talks to cmd/api the way a browser client would.
type apiClient struct {
	baseURL string
	http    *http.Client
	token   string
}

type authReply struct {
	Token string      `json:"token"`
	User  models.User `json:"user"`
}

func newAPIClient(baseURL string) *apiClient {
	return &apiClient{baseURL: strings.TrimRight(baseURL, "/"), http: &http.Client{Timeout: 10 * time.Second}}
}

func (c *apiClient) post(ctx context.Context, path string, body, out any) error {
	b, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return errUnauthorized
	case resp.StatusCode >= 300:
		return fmt.Errorf("%s: %d %s", path, resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	return json.Unmarshal(raw, out)
}

// signIn logs in, registering the account first when it does not exist yet.
func (c *apiClient) signIn(ctx context.Context, email, password, apiKey, secretKey string) (models.User, error) {
	var reply authReply
	err := c.post(ctx, "/api/auth/login", map[string]string{"email": email, "password": password}, &reply)
	if errors.Is(err, errUnauthorized) {
		err = c.post(ctx, "/api/auth/register", map[string]string{
			"email": email, "password": password, "apiKey": apiKey, "secretKey": secretKey,
		}, &reply)
	}
	if err != nil {
		return models.User{}, err
	}
	c.token = reply.Token
	return reply.User, nil
}

func (c *apiClient) submit(ctx context.Context, req models.SubmitOrderRequest) (models.SubmitOrderResponse, error) {
	var resp models.SubmitOrderResponse
	err := c.post(ctx, "/api/trading/orders", req, &resp)
	return resp, err
}
