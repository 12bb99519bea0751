package reolink

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/reolink-tools/daygrab/internal/logctx"
	"github.com/reolink-tools/daygrab/internal/nvr"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Reolink rsp codes we care about. Everything else is an opaque APIError.
const (
	rspCodeMaxSession    = -5 // concurrent session ceiling reached
	rspCodeLoginRequired = -6 // token missing or lease expired
	rspCodeLoginFailed   = -7 // bad credentials
)

const defaultCommandTimeout = 30 * time.Second

type Client struct {
	Host     string
	Username string
	Password string

	apiURL         string
	httpClient     *http.Client
	commandTimeout time.Duration
	token          string
}

// Ensure Client implements nvr.Session
var _ nvr.Session = (*Client)(nil)

type Option func(*Client)

// WithCommandTimeout bounds non-streaming API commands. Playback streaming is
// bounded by the caller's context instead.
func WithCommandTimeout(d time.Duration) Option {
	return func(c *Client) { c.commandTimeout = d }
}

// WithHTTPClient replaces the underlying HTTP client (tests).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func NewClient(host, username, password string, opts ...Option) *Client {
	client := &Client{
		Host:     host,
		Username: username,
		Password: password,
		apiURL:   apiURLFor(host),
		// No client-level timeout: Playback streams a whole segment and is
		// bounded per attempt by the caller's context.
		httpClient: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		commandTimeout: defaultCommandTimeout,
	}

	for _, opt := range opts {
		opt(client)
	}

	return client
}

func apiURLFor(host string) string {
	if strings.HasPrefix(host, "http://") || strings.HasPrefix(host, "https://") {
		return strings.TrimSuffix(host, "/") + "/cgi-bin/api.cgi"
	}

	return "http://" + host + "/cgi-bin/api.cgi"
}

// command is the envelope the CGI API expects; requests are arrays of these.
type command struct {
	Cmd    string `json:"cmd"`
	Action int    `json:"action"`
	Param  any    `json:"param,omitempty"`
}

type response struct {
	Cmd   string          `json:"cmd"`
	Code  int             `json:"code"`
	Value json.RawMessage `json:"value,omitempty"`
	Error *rspError       `json:"error,omitempty"`
}

type rspError struct {
	RspCode int    `json:"rspCode"`
	Detail  string `json:"detail"`
}

// apiTime is the exploded timestamp format used by Search and Playback params.
type apiTime struct {
	Year int `json:"year"`
	Mon  int `json:"mon"`
	Day  int `json:"day"`
	Hour int `json:"hour"`
	Min  int `json:"min"`
	Sec  int `json:"sec"`
}

func newAPITime(t time.Time) apiTime {
	return apiTime{
		Year: t.Year(),
		Mon:  int(t.Month()),
		Day:  t.Day(),
		Hour: t.Hour(),
		Min:  t.Minute(),
		Sec:  t.Second(),
	}
}

func (t apiTime) Time(loc *time.Location) time.Time {
	return time.Date(t.Year, time.Month(t.Mon), t.Day, t.Hour, t.Min, t.Sec, 0, loc)
}

// Login establishes a token lease. The token is carried on every subsequent
// command until Logout or lease expiry.
func (c *Client) Login(ctx context.Context) error {
	logger := logctx.LoggerFromContext(ctx).With("cmd", "Login", "host", c.Host)

	cmd := command{
		Cmd:    "Login",
		Action: 0,
		Param: map[string]any{
			"User": map[string]string{
				"userName": c.Username,
				"password": c.Password,
			},
		},
	}

	var value struct {
		Token struct {
			Name      string `json:"name"`
			LeaseTime int    `json:"leaseTime"`
		} `json:"Token"`
	}

	if err := c.call(ctx, cmd, &value); err != nil {
		logger.Error("login failed", "err", err)

		return err
	}

	c.token = value.Token.Name
	logger.Debug("logged in", "lease_seconds", value.Token.LeaseTime)

	return nil
}

// Logout releases the device-side session slot.
func (c *Client) Logout(ctx context.Context) error {
	if c.token == "" {
		return nil
	}

	err := c.call(ctx, command{Cmd: "Logout", Action: 0}, nil)
	c.token = ""

	return err
}

// Channels lists the recorder's camera inputs.
func (c *Client) Channels(ctx context.Context) ([]nvr.Channel, error) {
	var value struct {
		Count  int `json:"count"`
		Status []struct {
			Channel int    `json:"channel"`
			Name    string `json:"name"`
			Online  int    `json:"online"`
		} `json:"status"`
	}

	if err := c.call(ctx, command{Cmd: "GetChannelstatus", Action: 0}, &value); err != nil {
		return nil, err
	}

	channels := make([]nvr.Channel, 0, len(value.Status))
	for _, s := range value.Status {
		channels = append(channels, nvr.Channel{
			Index:  s.Channel,
			Name:   s.Name,
			Online: s.Online == 1,
		})
	}

	// Cameras (as opposed to NVRs) report no channel table; they are a
	// single channel 0.
	if len(channels) == 0 {
		channels = append(channels, nvr.Channel{Index: 0, Online: true})
	}

	return channels, nil
}

type searchParam struct {
	Channel    int     `json:"channel"`
	OnlyStatus int     `json:"onlyStatus"`
	StreamType string  `json:"streamType"`
	StartTime  apiTime `json:"StartTime"`
	EndTime    apiTime `json:"EndTime"`
}

type searchResult struct {
	Channel int `json:"channel"`
	Status  []struct {
		Year  int    `json:"year"`
		Mon   int    `json:"mon"`
		Table string `json:"table"`
	} `json:"Status"`
	File []struct {
		Name      string  `json:"name"`
		Size      int64   `json:"size"`
		Type      string  `json:"type"`
		StartTime apiTime `json:"StartTime"`
		EndTime   apiTime `json:"EndTime"`
	} `json:"File"`
}

// RecordingDays scans the recording calendar for days that have footage,
// newest first, bounded to the last lookback days.
func (c *Client) RecordingDays(ctx context.Context, channel int, quality nvr.Quality, lookback int) ([]time.Time, error) {
	logger := logctx.LoggerFromContext(ctx).With("cmd", "Search", "channel", channel)

	now := time.Now()
	oldest := now.AddDate(0, 0, -lookback)

	var days []time.Time

	currentMonth := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())

	// One calendar query per month touched by the lookback window, oldest
	// month first so the final reversal yields newest-first days.
	for month := time.Date(oldest.Year(), oldest.Month(), 1, 0, 0, 0, 0, oldest.Location()); !month.After(currentMonth); month = month.AddDate(0, 1, 0) {
		monthEnd := month.AddDate(0, 1, 0).Add(-time.Second)

		result, err := c.search(ctx, searchParam{
			Channel:    channel,
			OnlyStatus: 1,
			StreamType: quality.StreamType(),
			StartTime:  newAPITime(month),
			EndTime:    newAPITime(monthEnd),
		})
		if err != nil {
			logger.Debug("calendar query failed, skipping month", "month", month.Format("2006-01"), "err", err)

			continue
		}

		for _, status := range result.Status {
			for i, flag := range status.Table {
				if flag != '1' {
					continue
				}

				day := time.Date(status.Year, time.Month(status.Mon), i+1, 0, 0, 0, 0, now.Location())
				if day.Before(oldest) || day.After(now) {
					continue
				}

				days = append(days, day)
			}
		}
	}

	// Newest first for presentation.
	for i, j := 0, len(days)-1; i < j; i, j = i+1, j-1 {
		days[i], days[j] = days[j], days[i]
	}

	return days, nil
}

// Recordings lists the VOD files the device holds for the channel in
// [from, to].
func (c *Client) Recordings(ctx context.Context, channel int, quality nvr.Quality, from, to time.Time) ([]nvr.Recording, error) {
	result, err := c.search(ctx, searchParam{
		Channel:    channel,
		OnlyStatus: 0,
		StreamType: quality.StreamType(),
		StartTime:  newAPITime(from),
		EndTime:    newAPITime(to),
	})
	if err != nil {
		return nil, err
	}

	recordings := make([]nvr.Recording, 0, len(result.File))
	for _, f := range result.File {
		recordings = append(recordings, nvr.Recording{
			Name:  f.Name,
			Start: f.StartTime.Time(from.Location()),
			End:   f.EndTime.Time(from.Location()),
			Size:  f.Size,
		})
	}

	return recordings, nil
}

func (c *Client) search(ctx context.Context, param searchParam) (*searchResult, error) {
	var value struct {
		SearchResult searchResult `json:"SearchResult"`
	}

	cmd := command{Cmd: "Search", Action: 0, Param: map[string]any{"Search": param}}
	if err := c.call(ctx, cmd, &value); err != nil {
		return nil, err
	}

	return &value.SearchResult, nil
}

// FetchSegment streams one time slice of a recording. The returned reader is
// the raw MP4 body; the caller owns draining and closing it. Cancellation and
// the per-attempt timeout come from ctx.
func (c *Client) FetchSegment(ctx context.Context, req nvr.SegmentRequest) (io.ReadCloser, error) {
	logger := logctx.LoggerFromContext(ctx).With("cmd", "Playback", "channel", req.Channel)

	query := url.Values{}
	query.Set("cmd", "Playback")
	query.Set("channel", strconv.Itoa(req.Channel))
	query.Set("source", req.Source)
	query.Set("output", req.Source)
	query.Set("streamType", req.Quality.StreamType())
	query.Set("start", req.Start.Format("20060102150405"))
	query.Set("end", req.End.Format("20060102150405"))
	query.Set("token", c.token)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiURL+"?"+query.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build playback request: %w", err)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &nvr.APIError{Cmd: "Playback", Detail: err.Error(), Err: err}
	}

	if err := classifyHTTPStatus("Playback", resp); err != nil {
		resp.Body.Close()

		return nil, err
	}

	// The device reports command failures as a JSON payload on an otherwise
	// 200 response.
	if strings.Contains(resp.Header.Get("Content-Type"), "json") {
		defer resp.Body.Close()

		var responses []response
		if err := json.NewDecoder(resp.Body).Decode(&responses); err != nil || len(responses) == 0 {
			return nil, &nvr.APIError{Cmd: "Playback", Detail: "unexpected json body", Err: err}
		}

		return nil, classifyRspError("Playback", responses[0].Error)
	}

	logger.Debug("playback stream open", "source", req.Source, "start", req.Start)

	return resp.Body, nil
}

// call posts a single command and decodes its value into out (when non-nil).
func (c *Client) call(ctx context.Context, cmd command, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.commandTimeout)
	defer cancel()

	body, err := json.Marshal([]command{cmd})
	if err != nil {
		return fmt.Errorf("failed to encode %s command: %w", cmd.Cmd, err)
	}

	reqURL := c.apiURL + "?cmd=" + cmd.Cmd
	if c.token != "" && cmd.Cmd != "Login" {
		reqURL += "&token=" + url.QueryEscape(c.token)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, strings.NewReader(string(body)))
	if err != nil {
		return fmt.Errorf("failed to build %s request: %w", cmd.Cmd, err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &nvr.APIError{Cmd: cmd.Cmd, Detail: err.Error(), Err: err}
	}
	defer resp.Body.Close()

	if err := classifyHTTPStatus(cmd.Cmd, resp); err != nil {
		return err
	}

	var responses []response
	if err := json.NewDecoder(resp.Body).Decode(&responses); err != nil {
		return &nvr.APIError{Cmd: cmd.Cmd, Detail: "failed to decode response", Err: err}
	}

	if len(responses) == 0 {
		return &nvr.APIError{Cmd: cmd.Cmd, Detail: "empty response"}
	}

	first := responses[0]
	if first.Code != 0 {
		return classifyRspError(cmd.Cmd, first.Error)
	}

	if out != nil {
		if err := json.Unmarshal(first.Value, out); err != nil {
			return &nvr.APIError{Cmd: cmd.Cmd, Detail: "failed to decode value", Err: err}
		}
	}

	return nil
}

func classifyHTTPStatus(cmd string, resp *http.Response) error {
	switch {
	case resp.StatusCode == http.StatusServiceUnavailable || resp.StatusCode == http.StatusTooManyRequests:
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))

		return &nvr.OverloadError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(b))}
	case resp.StatusCode != http.StatusOK:
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))

		return &nvr.APIError{Cmd: cmd, Detail: fmt.Sprintf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))}
	}

	return nil
}

func classifyRspError(cmd string, rsp *rspError) error {
	if rsp == nil {
		return &nvr.APIError{Cmd: cmd, Detail: "command failed without detail"}
	}

	switch rsp.RspCode {
	case rspCodeMaxSession:
		return &nvr.OverloadError{Message: rsp.Detail}
	case rspCodeLoginRequired:
		return &nvr.SessionExpiredError{Operation: cmd}
	case rspCodeLoginFailed:
		return &nvr.AuthError{Operation: cmd, Err: &nvr.APIError{Cmd: cmd, Code: rsp.RspCode, Detail: rsp.Detail}}
	}

	return &nvr.APIError{Cmd: cmd, Code: rsp.RspCode, Detail: rsp.Detail}
}
