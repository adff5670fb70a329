// Copyright 2020 Gravwave Observatory Software Collaboration
// Use of this source code is governed by the BSD 3-clause
// license that can be found in the LICENSE file.

// Package alert submits candidate-event documents to an alert service.
package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"os"

	"golang.org/x/oauth2/clientcredentials"
)

type Client struct {
	Server  string
	Testing bool

	HTTP *http.Client
}

// NewClient builds an alert client for the given server. When
// ALERT_CLIENT_ID is set, requests carry OAuth2 client-credential tokens
// from ALERT_TOKEN_URL.
func NewClient(server string, testing bool) *Client {
	httpClient := http.DefaultClient
	if id := os.Getenv("ALERT_CLIENT_ID"); len(id) > 0 {
		conf := &clientcredentials.Config{
			ClientID:     id,
			ClientSecret: os.Getenv("ALERT_CLIENT_SECRET"),
			TokenURL:     os.Getenv("ALERT_TOKEN_URL"),
		}
		httpClient = conf.Client(context.Background())
	}

	return &Client{
		Server:  server,
		Testing: testing,
		HTTP:    httpClient,
	}
}

// Submit posts a candidate-event document. Testing clients file events under
// the Test group so they never trigger downstream alerts.
func (c *Client) Submit(ctx context.Context, doc []byte, filename string) (string, error) {
	group := "Production"
	if c.Testing {
		group = "Test"
	}

	body := &bytes.Buffer{}
	form := multipart.NewWriter(body)
	if err := form.WriteField("group", group); err != nil {
		return "", err
	}
	part, err := form.CreateFormFile("eventFile", filename)
	if err != nil {
		return "", err
	}
	if _, err := part.Write(doc); err != nil {
		return "", err
	}
	if err := form.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequest("POST", c.Server+"/api/events/", body)
	if err != nil {
		return "", err
	}
	req = req.WithContext(ctx)
	req.Header.Set("Content-Type", form.FormDataContentType())

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return "", fmt.Errorf("alert service returned %v", resp.Status)
	}

	var created struct {
		Id string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return "", err
	}
	return created.Id, nil
}
