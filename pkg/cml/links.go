package cml

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/newtron-network/cmlkit/pkg/model"
)

// ListLinks returns every link of a lab.
func (c *Client) ListLinks(ctx context.Context, labID string) ([]model.Link, error) {
	raw, err := c.Call(ctx, http.MethodGet, labPath(labID, "links?data=true"), nil)
	if err != nil {
		return nil, err
	}
	objects, ids, err := splitEntries(raw)
	if err != nil {
		return nil, fmt.Errorf("decoding link list: %w", err)
	}

	links := make([]model.Link, 0, len(objects)+len(ids))
	for _, obj := range objects {
		var w linkWire
		if err := json.Unmarshal(obj, &w); err != nil {
			return nil, fmt.Errorf("decoding link: %w", err)
		}
		links = append(links, w.toModel(labID))
	}
	for _, id := range ids {
		l, err := c.GetLink(ctx, labID, id)
		if err != nil {
			return nil, err
		}
		links = append(links, l)
	}
	return links, nil
}

// GetLink reads one link.
func (c *Client) GetLink(ctx context.Context, labID, linkID string) (model.Link, error) {
	var w linkWire
	if err := c.callJSON(ctx, http.MethodGet, labPath(labID, "links", url.PathEscape(linkID)), nil, &w); err != nil {
		return model.Link{}, err
	}
	if w.ID == "" {
		w.ID = linkID
	}
	return w.toModel(labID), nil
}

// CreateLink connects two interfaces. The platform answers 409 (CONFLICT)
// when either interface already terminates a link.
func (c *Client) CreateLink(ctx context.Context, labID, interfaceA, interfaceB string) (model.Link, error) {
	body := map[string]string{"src_int": interfaceA, "dst_int": interfaceB}
	var w linkWire
	path := labPath(labID, "links")
	if err := c.callJSON(ctx, http.MethodPost, path, body, &w); err != nil {
		return model.Link{}, err
	}
	if w.ID == "" {
		return model.Link{}, &RemoteError{Kind: KindServer, Method: http.MethodPost, Path: apiPath(path), Message: "no link id in response"}
	}
	l := w.toModel(labID)
	if l.InterfaceA == "" {
		l.InterfaceA, l.InterfaceB = interfaceA, interfaceB
	}
	return l, nil
}

// DeleteLink removes a link.
func (c *Client) DeleteLink(ctx context.Context, labID, linkID string) error {
	_, err := c.Call(ctx, http.MethodDelete, labPath(labID, "links", url.PathEscape(linkID)), nil)
	return err
}
