// Package gateway is the HTTP client for the interview backend.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/prajwalbangera/interview-voice/internal/core"
	"github.com/prajwalbangera/interview-voice/internal/domain"
)

// Organization is the tenant header every backend call carries.
const orgHeader = "Organization"

const maxErrorBody = 4 << 10

// Client talks to the three session-lifecycle endpoints. It implements
// core.Gateway.
type Client struct {
	baseURL string
	orgID   string
	http    *http.Client
}

func NewClient(baseURL, orgID string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		orgID:   orgID,
		http:    &http.Client{Timeout: timeout},
	}
}

type startRequest struct {
	RefNum         string `json:"ref_num"`
	CustomDuration int    `json:"custom_duration"`
}

type stopRequest struct {
	RefNum string `json:"ref_num"`
}

type tokenResponse struct {
	Success         bool   `json:"success"`
	Token           string `json:"token"`
	LivekitURL      string `json:"livekit_url"`
	RoomName        string `json:"room_name"`
	ParticipantName string `json:"participant_name"`
}

func (c *Client) InitializeSession(ctx context.Context, refNum string, durationMinutes int) error {
	body, err := json.Marshal(startRequest{RefNum: refNum, CustomDuration: durationMinutes})
	if err != nil {
		return &core.NetworkError{Op: "initialize", Err: err}
	}
	resp, err := c.do(ctx, http.MethodPost, "/start_livekit_interview/", bytes.NewReader(body))
	if err != nil {
		return &core.NetworkError{Op: "initialize", Err: err}
	}
	defer resp.Body.Close()

	if err := checkStatus("initialize", resp); err != nil {
		return err
	}
	log.Info().Str("module", "gateway").Str("ref_num", refNum).Msg("session initialized")
	return nil
}

func (c *Client) FetchCredential(ctx context.Context, refNum, participantName, roomName string) (*domain.Credential, error) {
	q := url.Values{}
	q.Set("ref_num", refNum)
	q.Set("participant_name", participantName)
	q.Set("room_name", roomName)

	resp, err := c.do(ctx, http.MethodGet, "/get_livekit_token/?"+q.Encode(), nil)
	if err != nil {
		return nil, &core.NetworkError{Op: "credential", Err: err}
	}
	defer resp.Body.Close()

	if err := checkStatus("credential", resp); err != nil {
		return nil, err
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return nil, &core.NetworkError{Op: "credential", Err: fmt.Errorf("decode response: %w", err)}
	}
	if !tr.Success || tr.Token == "" {
		return nil, &core.NetworkError{Op: "credential", Err: errors.New("backend refused to issue a token")}
	}

	log.Info().Str("module", "gateway").Str("ref_num", refNum).Str("room", tr.RoomName).Msg("credential issued")
	return &domain.Credential{
		Token:           tr.Token,
		ServiceURL:      tr.LivekitURL,
		RoomName:        tr.RoomName,
		ParticipantName: tr.ParticipantName,
	}, nil
}

func (c *Client) TeardownSession(ctx context.Context, refNum string) error {
	body, err := json.Marshal(stopRequest{RefNum: refNum})
	if err != nil {
		return &core.NetworkError{Op: "teardown", Err: err}
	}
	resp, err := c.do(ctx, http.MethodPost, "/stop_livekit_interview/", bytes.NewReader(body))
	if err != nil {
		return &core.NetworkError{Op: "teardown", Err: err}
	}
	defer resp.Body.Close()

	if err := checkStatus("teardown", resp); err != nil {
		return err
	}
	log.Info().Str("module", "gateway").Str("ref_num", refNum).Msg("session torn down")
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set(orgHeader, c.orgID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.http.Do(req)
}

// checkStatus turns a non-2xx response into a NetworkError carrying the
// status and body text.
func checkStatus(op string, resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &core.NetworkError{Op: op, Status: resp.StatusCode, Body: strings.TrimSpace(string(b))}
}
