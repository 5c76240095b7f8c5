// Package cloudinary uploads event and stall images to Cloudinary.
package cloudinary

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/juju/clock"
	"github.com/juju/errors"
)

const defaultBaseURL = "https://api.cloudinary.com/v1_1"

// Client uploads images through the Cloudinary REST API.
type Client struct {
	CloudName string
	APIKey    string
	APISecret string
	Folder    string
	BaseURL   string
	HTTP      *http.Client
	Clock     clock.Clock
}

// New creates a Cloudinary client.
func New(cloudName, apiKey, apiSecret, folder string) *Client {
	return &Client{
		CloudName: cloudName,
		APIKey:    apiKey,
		APISecret: apiSecret,
		Folder:    folder,
		BaseURL:   defaultBaseURL,
		HTTP:      &http.Client{Timeout: 30 * time.Second},
		Clock:     clock.WallClock,
	}
}

// UploadResult holds the response from Cloudinary after a successful upload.
type UploadResult struct {
	PublicID  string `json:"public_id"`
	SecureURL string `json:"secure_url"`
	URL       string `json:"url"`
	Format    string `json:"format"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	Bytes     int    `json:"bytes"`
}

// UploadDataURL uploads a data URL ("data:image/jpeg;base64,...") or raw
// base64 image into subfolder.
func (c *Client) UploadDataURL(ctx context.Context, subfolder, data string) (*UploadResult, error) {
	if strings.TrimSpace(data) == "" {
		return nil, errors.NotValidf("empty image")
	}
	return c.upload(ctx, subfolder, func(w *multipart.Writer) error {
		return w.WriteField("file", data)
	})
}

// UploadBytes uploads raw image bytes into subfolder.
func (c *Client) UploadBytes(ctx context.Context, subfolder string, data []byte, filename string) (*UploadResult, error) {
	if len(data) == 0 {
		return nil, errors.NotValidf("empty image")
	}
	return c.upload(ctx, subfolder, func(w *multipart.Writer) error {
		part, err := w.CreateFormFile("file", filename)
		if err != nil {
			return err
		}
		_, err = part.Write(data)
		return err
	})
}

func (c *Client) folder(subfolder string) string {
	switch {
	case c.Folder == "":
		return subfolder
	case subfolder == "":
		return c.Folder
	}
	return c.Folder + "/" + subfolder
}

func (c *Client) upload(ctx context.Context, subfolder string, writeFile func(*multipart.Writer) error) (*UploadResult, error) {
	clk := c.Clock
	if clk == nil {
		clk = clock.WallClock
	}
	params := map[string]string{
		"timestamp": strconv.FormatInt(clk.Now().Unix(), 10),
		"api_key":   c.APIKey,
	}
	if folder := c.folder(subfolder); folder != "" {
		params["folder"] = folder
	}
	params["signature"] = c.sign(params)

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range params {
		if err := w.WriteField(k, v); err != nil {
			return nil, errors.Annotate(err, "cloudinary: build form")
		}
	}
	if err := writeFile(w); err != nil {
		return nil, errors.Annotate(err, "cloudinary: write file")
	}
	if err := w.Close(); err != nil {
		return nil, errors.Annotate(err, "cloudinary: build form")
	}

	base := c.BaseURL
	if base == "" {
		base = defaultBaseURL
	}
	url := fmt.Sprintf("%s/%s/image/upload", base, c.CloudName)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &buf)
	if err != nil {
		return nil, errors.Annotate(err, "cloudinary: create request")
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	httpClient := c.HTTP
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, errors.Annotate(err, "cloudinary: request")
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 300 {
		return nil, errors.Errorf("cloudinary: upload failed (%d): %s", resp.StatusCode, body)
	}
	var result UploadResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, errors.Annotate(err, "cloudinary: decode response")
	}
	return &result, nil
}

// sign computes the API signature. api_key and file are not signed.
func (c *Client) sign(params map[string]string) string {
	exclude := map[string]bool{"api_key": true, "file": true, "resource_type": true}
	pairs := make([]string, 0, len(params))
	for k, v := range params {
		if !exclude[k] && v != "" {
			pairs = append(pairs, k+"="+v)
		}
	}
	sort.Strings(pairs)
	sum := sha1.Sum([]byte(strings.Join(pairs, "&") + c.APISecret))
	return hex.EncodeToString(sum[:])
}
