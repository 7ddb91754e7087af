package cml

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/newtron-network/cmlkit/pkg/model"
)

func labPath(labID string, parts ...string) string {
	p := "/labs/" + url.PathEscape(labID)
	for _, part := range parts {
		p += "/" + part
	}
	return p
}

// ListLabs returns every lab visible to the authenticated user.
func (c *Client) ListLabs(ctx context.Context) ([]model.Lab, error) {
	raw, err := c.Call(ctx, http.MethodGet, "/labs?show_all=true", nil)
	if err != nil {
		return nil, err
	}
	objects, ids, err := splitEntries(raw)
	if err != nil {
		return nil, fmt.Errorf("decoding lab list: %w", err)
	}

	labs := make([]model.Lab, 0, len(objects)+len(ids))
	for _, obj := range objects {
		var w labWire
		if err := json.Unmarshal(obj, &w); err != nil {
			return nil, fmt.Errorf("decoding lab: %w", err)
		}
		labs = append(labs, w.toModel())
	}
	for _, id := range ids {
		lab, err := c.GetLab(ctx, id)
		if err != nil {
			if IsNotFound(err) {
				continue // deleted between list and get
			}
			return nil, err
		}
		labs = append(labs, lab)
	}
	return labs, nil
}

// GetLab reads one lab.
func (c *Client) GetLab(ctx context.Context, labID string) (model.Lab, error) {
	var w labWire
	if err := c.callJSON(ctx, http.MethodGet, labPath(labID), nil, &w); err != nil {
		return model.Lab{}, err
	}
	if w.ID == "" {
		w.ID = labID
	}
	return w.toModel(), nil
}

// CreateLab creates an empty lab.
func (c *Client) CreateLab(ctx context.Context, title, description string) (model.Lab, error) {
	body := map[string]string{"title": title, "description": description}
	var w labWire
	if err := c.callJSON(ctx, http.MethodPost, "/labs", body, &w); err != nil {
		return model.Lab{}, err
	}
	if w.ID == "" {
		return model.Lab{}, &RemoteError{Kind: KindServer, Method: http.MethodPost, Path: apiPath("/labs"), Message: "no lab id in response"}
	}
	lab := w.toModel()
	if lab.Title == "" {
		lab.Title = title
	}
	if lab.Description == "" {
		lab.Description = description
	}
	if lab.State == model.LabUnknown {
		lab.State = model.LabDefined
	}
	return lab, nil
}

// DeleteLab removes a lab. The platform rejects deletion of a started lab.
func (c *Client) DeleteLab(ctx context.Context, labID string) error {
	_, err := c.Call(ctx, http.MethodDelete, labPath(labID), nil)
	return err
}

// StartLab triggers a start of every node in the lab. It returns as soon as
// the platform accepts the request.
func (c *Client) StartLab(ctx context.Context, labID string) error {
	_, err := c.Call(ctx, http.MethodPut, labPath(labID, "start"), nil)
	return err
}

// StopLab triggers a stop of every node in the lab.
func (c *Client) StopLab(ctx context.Context, labID string) error {
	_, err := c.Call(ctx, http.MethodPut, labPath(labID, "stop"), nil)
	return err
}

// WipeLab discards node disks of a stopped lab, returning it to DEFINED.
func (c *Client) WipeLab(ctx context.Context, labID string) error {
	_, err := c.Call(ctx, http.MethodPut, labPath(labID, "wipe"), nil)
	return err
}

// LabState reads the current lab state.
func (c *Client) LabState(ctx context.Context, labID string) (model.LabState, error) {
	raw, err := c.Call(ctx, http.MethodGet, labPath(labID, "state"), nil)
	if err != nil {
		return model.LabUnknown, err
	}
	s, err := stateString(raw)
	if err != nil {
		return model.LabUnknown, err
	}
	return model.ParseLabState(s), nil
}
