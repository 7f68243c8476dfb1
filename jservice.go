/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

const maxResponseSize = 4 << 20

var ErrFetch = errors.New("trivia api request failed")

// FetchError reports a failed request to the trivia API. It matches ErrFetch
// and unwraps to the underlying cause, if any.
type FetchError struct {
	Endpoint string
	Status   int
	Err      error
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("fetch %s: unexpected status %d %s", e.Endpoint, e.Status, http.StatusText(e.Status))
	}
	return fmt.Sprintf("fetch %s: %v", e.Endpoint, e.Err)
}

func (e *FetchError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrFetch}
	}
	return []error{ErrFetch, e.Err}
}

type APICategory struct {
	ID         int    `json:"id"`
	Title      string `json:"title"`
	CluesCount int    `json:"clues_count"`
}

type APIClue struct {
	ID       int         `json:"id"`
	Question string      `json:"question"`
	Answer   string      `json:"answer"`
	Value    int         `json:"value"`
	Category APICategory `json:"category"`
}

// CategorySource lists categories and the clues belonging to each.
type CategorySource interface {
	Categories(ctx context.Context, count int) ([]APICategory, error)
	Clues(ctx context.Context, categoryID int) ([]APIClue, error)
}

// JService is a CategorySource backed by a jService-compatible HTTP API.
type JService struct {
	baseURL *url.URL
	client  *http.Client
	timeout time.Duration
}

func NewJService(baseURL string, timeout time.Duration) (*JService, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse api url: %w", err)
	}

	return &JService{
		baseURL: u,
		client:  &http.Client{},
		timeout: timeout,
	}, nil
}

func (j *JService) Categories(ctx context.Context, count int) ([]APICategory, error) {
	var categories []APICategory

	err := j.get(ctx, "categories", url.Values{"count": {strconv.Itoa(count)}}, &categories)
	if err != nil {
		return nil, err
	}

	return categories, nil
}

func (j *JService) Clues(ctx context.Context, categoryID int) ([]APIClue, error) {
	var clues []APIClue

	err := j.get(ctx, "clues", url.Values{"category": {strconv.Itoa(categoryID)}}, &clues)
	if err != nil {
		return nil, err
	}

	return clues, nil
}

func (j *JService) get(ctx context.Context, endpoint string, query url.Values, v any) error {
	if j.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.timeout)
		defer cancel()
	}

	u := j.baseURL.JoinPath(endpoint)
	u.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return &FetchError{Endpoint: endpoint, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "jeopardy/"+releaseVersion)

	resp, err := j.client.Do(req)
	if err != nil {
		return &FetchError{Endpoint: endpoint, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseSize))
		return &FetchError{Endpoint: endpoint, Status: resp.StatusCode}
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseSize)).Decode(v); err != nil {
		return &FetchError{Endpoint: endpoint, Err: fmt.Errorf("decode response: %w", err)}
	}

	return nil
}
