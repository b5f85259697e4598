// Copyright (c) 2025 Simon Lapacek
// SPDX-License-Identifier: MIT

package operation

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/lapacek-labs/retry-fanout/pkg/attempt"
)

const DefaultTodoBaseURL = "https://jsonplaceholder.typicode.com/todos/"

type Todo struct {
	UserID    int    `json:"userId"`
	ID        int    `json:"id"`
	Title     string `json:"title"`
	Completed bool   `json:"completed"`
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Code int
	URL  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: unexpected status %d %s", e.URL, e.Code, http.StatusText(e.Code))
}

func (e *StatusError) StatusCode() int {
	return e.Code
}

// TodoFetcher resolves an item to the title of the todo with the same id.
type TodoFetcher struct {
	client  *http.Client
	baseURL string
}

var _ attempt.Operation = (*TodoFetcher)(nil)

func NewTodoFetcher(client *http.Client, baseURL string) *TodoFetcher {
	if client == nil {
		client = http.DefaultClient
	}
	if baseURL == "" {
		baseURL = DefaultTodoBaseURL
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	return &TodoFetcher{client: client, baseURL: baseURL}
}

func (f *TodoFetcher) Call(ctx context.Context, item attempt.Item) (string, error) {
	todo, err := f.Fetch(ctx, int(item))
	if err != nil {
		return "", err
	}
	return todo.Title, nil
}

func (f *TodoFetcher) Fetch(ctx context.Context, id int) (Todo, error) {
	url := f.baseURL + strconv.Itoa(id)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Todo{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return Todo{}, fmt.Errorf("GET %s: %w", url, err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return Todo{}, &StatusError{Code: resp.StatusCode, URL: url}
	}

	var todo Todo
	if err := json.NewDecoder(resp.Body).Decode(&todo); err != nil {
		return Todo{}, fmt.Errorf("decode todo %d: %w", id, err)
	}
	return todo, nil
}
