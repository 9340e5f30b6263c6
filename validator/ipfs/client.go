// Package ipfs provides the validator's view of the content network. All
// access goes through the HTTP API of a locally reachable IPFS node; the
// validator never speaks bitswap itself.
package ipfs

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("prefix", "ipfs")

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ContentStore abstracts the content network for proof computation and
// sub-block discovery. Implementations must honor the context deadline on
// every call.
type ContentStore interface {
	// Cat returns the full bytes of a content ID.
	Cat(ctx context.Context, cid string) ([]byte, error)
	// RecursiveRefs enumerates the ordered sub-block IDs beneath a root CID.
	RecursiveRefs(ctx context.Context, cid string) ([]string, error)
	// Add pins new content and returns its CID.
	Add(ctx context.Context, name string, data []byte) (string, error)
	// ID reports the peer ID of the backing node, as a liveness probe.
	ID(ctx context.Context) (string, error)
}

// HTTPClient is satisfied by *http.Client and by test doubles.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client talks to the go-ipfs HTTP API (POST-only since 0.5).
type Client struct {
	base string
	hc   HTTPClient
}

// NewClient validates the API address (e.g. http://127.0.0.1:5001) and
// returns a client. Per-call deadlines come from the caller's context, so the
// underlying http.Client carries no global timeout.
func NewClient(apiAddr string) (*Client, error) {
	u, err := url.Parse(apiAddr)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid IPFS API address %q", apiAddr)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, errors.Errorf("unsupported IPFS API scheme %q", u.Scheme)
	}
	return &Client{base: u.Scheme + "://" + u.Host, hc: &http.Client{}}, nil
}

// Cat returns the full bytes behind cid.
func (c *Client) Cat(ctx context.Context, cid string) ([]byte, error) {
	resp, err := c.doRequest(ctx, "/api/v0/cat?arg="+url.QueryEscape(cid), nil, "")
	if err != nil {
		return nil, err
	}
	defer closeBody(resp.Body)
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrapf(err, "could not read content of %s", cid)
	}
	return data, nil
}

type refLine struct {
	Ref string `json:"Ref"`
	Err string `json:"Err"`
}

// RecursiveRefs lists every block linked beneath cid, in DAG order. The API
// streams one JSON object per line; the full list is materialized here since
// proof walks need random access.
func (c *Client) RecursiveRefs(ctx context.Context, cid string) ([]string, error) {
	resp, err := c.doRequest(ctx, "/api/v0/refs?arg="+url.QueryEscape(cid)+"&recursive=true&unique=true", nil, "")
	if err != nil {
		return nil, err
	}
	defer closeBody(resp.Body)

	var refs []string
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var rl refLine
		if err := json.Unmarshal(line, &rl); err != nil {
			return nil, errors.Wrapf(err, "could not decode refs line for %s", cid)
		}
		if rl.Err != "" {
			return nil, errors.Errorf("refs enumeration failed for %s: %s", cid, rl.Err)
		}
		refs = append(refs, rl.Ref)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrapf(err, "could not stream refs of %s", cid)
	}
	return refs, nil
}

type addResponse struct {
	Name string `json:"Name"`
	Hash string `json:"Hash"`
	Size string `json:"Size"`
}

// Add uploads and pins data, returning the resulting CID.
func (c *Client) Add(ctx context.Context, name string, data []byte) (string, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", name)
	if err != nil {
		return "", errors.Wrap(err, "could not build multipart body")
	}
	if _, err := fw.Write(data); err != nil {
		return "", errors.Wrap(err, "could not write multipart body")
	}
	if err := mw.Close(); err != nil {
		return "", errors.Wrap(err, "could not finalize multipart body")
	}

	resp, err := c.doRequest(ctx, "/api/v0/add?pin=true", &body, mw.FormDataContentType())
	if err != nil {
		return "", err
	}
	defer closeBody(resp.Body)
	var ar addResponse
	if err := json.NewDecoder(resp.Body).Decode(&ar); err != nil {
		return "", errors.Wrap(err, "could not decode add response")
	}
	if ar.Hash == "" {
		return "", errors.New("add returned no content ID")
	}
	return ar.Hash, nil
}

type idResponse struct {
	ID string `json:"ID"`
}

// ID returns the peer ID of the node, proving the API is reachable.
func (c *Client) ID(ctx context.Context) (string, error) {
	resp, err := c.doRequest(ctx, "/api/v0/id", nil, "")
	if err != nil {
		return "", err
	}
	defer closeBody(resp.Body)
	var ir idResponse
	if err := json.NewDecoder(resp.Body).Decode(&ir); err != nil {
		return "", errors.Wrap(err, "could not decode id response")
	}
	return ir.ID, nil
}

type apiError struct {
	Message string `json:"Message"`
	Code    int    `json:"Code"`
}

func (c *Client) doRequest(ctx context.Context, path string, body io.Reader, contentType string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, body)
	if err != nil {
		return nil, errors.Wrap(err, "could not create API request")
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "could not execute API request")
	}
	if resp.StatusCode != http.StatusOK {
		defer closeBody(resp.Body)
		var ae apiError
		if derr := json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&ae); derr == nil && ae.Message != "" {
			return nil, errors.Errorf("API request %s failed: %s", path, ae.Message)
		}
		return nil, errors.Errorf("API request %s failed with status %s", path, resp.Status)
	}
	return resp, nil
}

func closeBody(body io.Closer) {
	if err := body.Close(); err != nil {
		log.WithError(err).Error("Could not close response body")
	}
}
